package assistant

import (
	"context"
	"time"

	"datachat/internal/logx"
)

const (
	DefaultSessionRetention       = 30 * 24 * time.Hour
	DefaultSessionCleanupInterval = time.Hour
)

// StartSessionCleaner periodically prunes sessions that ended longer
// than retention ago. Their exchanges go with them via the cascade.
func (s *Service) StartSessionCleaner(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = DefaultSessionCleanupInterval
	}
	if retention <= 0 {
		retention = DefaultSessionRetention
	}
	go s.cleanupLoop(ctx, interval, retention)
}

func (s *Service) cleanupLoop(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupEndedSessions(ctx, retention)
			if err != nil {
				logx.Error().Err(err).Msg("session cleanup failed")
				continue
			}
			if n > 0 {
				logx.Info().Int64("sessions", n).Msg("pruned ended sessions")
			}
		}
	}
}

// CleanupEndedSessions deletes sessions whose ended_at is older than the
// retention window and reports how many were removed.
func (s *Service) CleanupEndedSessions(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
