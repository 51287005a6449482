package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Error("NewTokenService() should reject secrets shorter than 16 chars")
	}

	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.TTL() != DefaultSessionTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultSessionTTL)
	}
}

func TestGenerateValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	now := time.Now()

	token, err := ts.Generate("user-123", "sess-9", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token %q does not look like a JWT", token)
	}

	c, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.UserID != "user-123" || c.SessionID != "sess-9" {
		t.Errorf("claims = %+v, want user-123/sess-9", c)
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("a-completely-different-secret", time.Hour)
	now := time.Now()

	expired, _ := ts.Generate("u", "s", now.Add(-2*time.Hour), now.Add(-time.Hour))
	foreign, _ := other.Generate("u", "s", now, now.Add(time.Hour))
	noSession, _ := ts.Generate("u", "", now, now.Add(time.Hour))

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u",
		ID:        "s",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("test-secret-at-least-16-chars!!"))

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u",
		ID:        "s",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong secret", foreign},
		{"no session id", noSession},
		{"wrong issuer", wrongIssuer},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}
