package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datachat/internal/models"
)

// RecordExchange inserts one conversation row and bumps the owning
// session's total_tokens in the same transaction, so a reader never sees
// one without the other. The UPDATE re-reads the stored counter, which
// keeps concurrent increments from losing updates.
func (s *Service) RecordExchange(ctx context.Context, sessionID, userMessage, botResponse string, tokensUsed int) (*models.Exchange, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if tokensUsed < 0 {
		return nil, errors.New("tokens_used cannot be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (session_id, user_message, bot_response, tokens_used, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, userMessage, botResponse, tokensUsed, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert exchange: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("exchange id: %w", err)
	}

	upd, err := tx.ExecContext(ctx,
		`UPDATE sessions SET total_tokens = total_tokens + ? WHERE id = ?`,
		tokensUsed, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("update session tokens: %w", err)
	}
	affected, err := upd.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		err = fmt.Errorf("session %s not found", sessionID)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit exchange: %w", err)
	}
	return &models.Exchange{
		ID:          id,
		SessionID:   sessionID,
		UserMessage: userMessage,
		BotResponse: botResponse,
		TokensUsed:  tokensUsed,
		CreatedAt:   now,
	}, nil
}

// SessionExchanges returns the ordered exchanges of one session.
func (s *Service) SessionExchanges(ctx context.Context, sessionID string) ([]models.Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_message, bot_response, tokens_used, created_at
		 FROM conversations WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		if err := rows.Scan(&ex.ID, &ex.SessionID, &ex.UserMessage, &ex.BotResponse, &ex.TokensUsed, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// SessionTokenSum recomputes the token total from the exchange rows.
// Used to cross-check the denormalized sessions.total_tokens counter.
func (s *Service) SessionTokenSum(ctx context.Context, sessionID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tokens_used), 0) FROM conversations WHERE session_id = ?`,
		sessionID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum exchange tokens: %w", err)
	}
	return sum, nil
}
