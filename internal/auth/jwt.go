// Package auth issues and validates QuestLog session tokens, talks to the
// OpenID Connect provider, and provides the HTTP middleware that turns a
// session cookie into a user ID on the request context.
//
// LOGIN FLOW OVERVIEW:
//  1. Browser visits /api/auth/oidc → redirected to the provider with state + PKCE
//  2. Provider calls back /api/auth/oidc/callback with a code
//  3. Server exchanges the code, verifies the ID token, upserts the user
//  4. Server records a session and sets the questlog_session cookie
//  5. Later requests carry the cookie; middleware validates token + session
//
// SESSION TOKENS:
// The cookie holds an HS256 JWT. "sub" is the user ID and "jti" is the
// session record ID. The signature lets us reject forged cookies without a
// database hit; the session record is what logout revokes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "questlog"

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// TokenService signs and verifies session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a zero ttl means DefaultSessionTTL.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Claims is what a valid session token tells us.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Generate signs a token for the given user and session, expiring at
// expiresAt. The caller stores the same expiry on the session record.
func (s *TokenService) Generate(userID, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    tokenIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token.
//
// Checks: HS256 signature, issuer, expiry, and non-empty subject and ID.
// Pinning the method with jwt.WithValidMethods rejects "alg: none" and
// algorithm-confusion tokens.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}

	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	if c.ID == "" {
		return nil, errors.New("auth: token has no session ID")
	}

	return &Claims{
		UserID:    c.Subject,
		SessionID: c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
