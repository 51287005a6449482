package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "cv37rs3pp9olc6atsptg"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("oidcId", "identity key is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "oidc|42"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("session revoked"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "wrapped Unauthorized still matches",
			err:       fmt.Errorf("service/auth: validating session: %w", Unauthorized("session expired")),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrUnauthorized",
			err:       NotFound("session", "abc"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
		{
			name:      "Forbidden does NOT match ErrValidation",
			err:       Forbidden("not yours"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "u1"),
			wantMessage: "user not found with id u1",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("return_to", "redirect target is not allowed"),
			wantMessage: "redirect target is not allowed",
		},
		{
			name:        "Unauthorized uses custom message",
			err:         Unauthorized("valid session required"),
			wantMessage: "valid session required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := Unauthorized("session revoked")
	if unwrapped := err.Unwrap(); unwrapped != ErrUnauthorized {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrUnauthorized)
	}
}

func TestErrorsAsExtractsField(t *testing.T) {
	wrapped := fmt.Errorf("service/auth: %w", ValidationFailed("oidcId", "identity key is required"))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() did not find *AppError in chain")
	}
	if appErr.Field != "oidcId" {
		t.Errorf("Field = %q, want %q", appErr.Field, "oidcId")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ValidationFailed("return_to", "bad"), "validation_error"},
		{fmt.Errorf("wrapped: %w", Unauthorized("no session")), "unauthorized"},
		{Forbidden("state mismatch"), "forbidden"},
		{NotFound("session", "s1"), "not_found"},
		{Conflict("user", "oidc|1"), "conflict"},
		{errors.New("disk full"), "internal_error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
