package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// SessionCookieName is the HttpOnly cookie carrying the session token.
const SessionCookieName = "questlog_session"

// SessionValidator checks a session token against the token signature and
// the stored session record. The service layer implements it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*Claims, error)
}

// contextKey is unexported so no other package can read or shadow our
// context values.
type contextKey string

const (
	userIDKey    contextKey = "userID"
	sessionIDKey contextKey = "sessionID"
)

var errNoToken = errors.New("auth: no session token")

// RequireAuth rejects requests without a valid session with 401 and stores
// the user and session IDs on the context otherwise.
func RequireAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, sessions)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid session required"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the session if one is valid but never blocks.
// Handlers such as current_user decide for themselves what anonymous means.
func OptionalAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := authenticate(r, sessions); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims returns ctx carrying the session's user and session IDs.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.UserID)
	return context.WithValue(ctx, sessionIDKey, c.SessionID)
}

// UserIDFromContext returns the authenticated user's ID, or ("", false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// SessionIDFromContext returns the current session's ID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest reads the session token from the session cookie, falling
// back to an "Authorization: Bearer" header for non-browser clients.
func TokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
		return strings.TrimSpace(token), true
	}
	return "", false
}

func authenticate(r *http.Request, sessions SessionValidator) (*Claims, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return nil, errNoToken
	}
	return sessions.ValidateSession(r.Context(), token)
}
