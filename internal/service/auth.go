// Package service holds the business rules between the HTTP handlers and
// the storage layer:
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository / SessionRepository
//	                   ↘ TokenService (session JWTs)
//
// Nothing here reads requests or sets cookies; that is the handler's job.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/auth"
	"github.com/sakif/questlog/internal/model"
	"github.com/sakif/questlog/internal/repository"
)

// AuthService handles login, session validation and logout.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// AuthResult bundles what the callback handler needs to finish a login.
type AuthResult struct {
	User    *model.User
	Session *model.Session
	Token   string
	Created bool
}

// LoginOrRegisterOIDC finds or creates the account for a verified provider
// identity and opens a session for it.
//
// The account is keyed on identity.Key(). A first login creates the account
// with default gamification fields; later logins only move lastLogin. Both
// happen in one atomic store operation, so concurrent first logins for the
// same person cannot produce two accounts. Any storage failure aborts the
// login.
func (s *AuthService) LoginOrRegisterOIDC(ctx context.Context, identity *auth.Identity) (*AuthResult, error) {
	if identity == nil || identity.Key() == "" {
		return nil, apperror.ValidationFailed("oidcId", "identity has no subject")
	}

	now := s.now().UTC()
	candidate := model.NewUser(identity.Key(), identity.Email, identity.DisplayName(), identity.Picture, now)

	user, created, err := s.users.UpsertLogin(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (oidcID=%s): %w", identity.Key(), err)
	}

	if created {
		s.logger.Info("new user created", slog.String("userID", user.ID))
	} else {
		s.logger.Info("user logged in", slog.String("userID", user.ID))
	}

	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.TTL()),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %s: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID, session.ID, now, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:    user,
		Session: session,
		Token:   token,
		Created: created,
	}, nil
}

// ValidateSession implements auth.SessionValidator. A token is valid when
// its signature checks out and its session record exists, belongs to the
// same user, and is neither expired nor revoked.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid session token")
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("session not found")
		}
		return nil, fmt.Errorf("service/auth: loading session %s: %w", claims.SessionID, err)
	}

	if session.UserID != claims.UserID || !session.Active(s.now()) {
		return nil, apperror.Unauthorized("session expired or revoked")
	}
	return claims, nil
}

// CurrentUser returns the account behind an authenticated request. An
// account that no longer exists is reported as unauthorized: the session
// outlived its user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no session")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// Logout revokes a session. Logging out of a session that is already gone
// is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	err := s.sessions.RevokeSession(ctx, sessionID, s.now().UTC())
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: revoking session %s: %w", sessionID, err)
	}

	s.logger.Info("session revoked", slog.String("sessionID", sessionID))
	return nil
}
