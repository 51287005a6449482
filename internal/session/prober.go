package session

import (
	"context"
	"errors"
	"log/slog"
)

// Prober makes the one-off mount-time request that detects blocked cookies.
type Prober struct {
	client *Client
	logger *slog.Logger
}

// NewProber creates a Prober.
func NewProber(client *Client, logger *slog.Logger) *Prober {
	return &Prober{client: client, logger: logger}
}

// CookiesBlocked issues one current-user request and reports whether the
// server answered without a user although one was expected, the signature
// of a browser dropping our cookie. A 401 is a plain anonymous answer, not
// a blocked cookie. Failures are logged and count as "not blocked"; there
// are no retries.
func (p *Prober) CookiesBlocked(ctx context.Context, expectUser bool) bool {
	_, err := p.client.CurrentUser(ctx)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoUser):
		return expectUser
	case errors.Is(err, ErrUnauthorized), errors.Is(err, context.Canceled):
		return false
	}
	p.logger.Warn("session probe failed", slog.String("error", err.Error()))
	return false
}
