package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"datachat/internal/models"
)

const placeholderTitle = "untitled"

// EnsureSession returns the session with the given id, creating it with a
// placeholder title and zero accumulated tokens when absent. The boolean
// reports whether a new row was created.
func (s *Service) EnsureSession(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, errors.New("session id is required")
	}

	session, err := s.GetSession(ctx, sessionID)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	now := time.Now().UTC()
	if _, insertErr := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, started_at, total_tokens) VALUES (?, ?, ?, 0)`,
		sessionID, placeholderTitle, now,
	); insertErr != nil {
		// a concurrent first request may have won the insert
		if session, err := s.GetSession(ctx, sessionID); err == nil {
			return session, false, nil
		}
		return nil, false, fmt.Errorf("create session: %w", insertErr)
	}
	return &models.Session{ID: sessionID, Title: placeholderTitle, StartedAt: now}, true, nil
}

// GetSession fetches one session row. Returns sql.ErrNoRows when missing.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, started_at, ended_at, total_tokens FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.Title, &session.StartedAt, &session.EndedAt, &session.TotalTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions ordered by start time, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, started_at, ended_at, total_tokens FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var se models.Session
		if err := rows.Scan(&se.ID, &se.Title, &se.StartedAt, &se.EndedAt, &se.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

// EndSession stamps ended_at on a session. Ending twice keeps the first
// timestamp.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		// either missing or already ended; distinguish for the caller
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSessionTitle sets a session title.
func (s *Service) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE id = ?`,
		title, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
