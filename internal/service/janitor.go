package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/questlog/internal/repository"
)

// SessionJanitor periodically deletes expired session records.
type SessionJanitor struct {
	sessions repository.SessionRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionJanitor creates a janitor that sweeps every interval.
func NewSessionJanitor(sessions repository.SessionRepository, interval time.Duration, logger *slog.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionJanitor{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep deletes sessions that have already expired.
func (j *SessionJanitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.sessions.DeleteExpiredSessions(ctx, j.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service/janitor: %w", err)
	}
	return n, nil
}

// Run sweeps until ctx is cancelled. Errors are logged, not returned, so a
// transient database problem does not stop future sweeps.
func (j *SessionJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Sweep(ctx)
			if err != nil {
				j.logger.Error("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				j.logger.Info("expired sessions deleted", slog.Int64("count", n))
			}
		}
	}
}
