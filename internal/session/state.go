// Package session keeps a client's belief about its login state in step
// with the server's cookie-backed session.
//
// A Controller is mounted once per client lifetime (a CLI invocation, a
// long-running agent). On mount it checks the local store for deprecated
// credentials, probes the server for blocked cookies, and schedules a
// debounced reconciliation that settles the AuthState. Login and logout go
// through the Actuator. State changes are published to Observers in order
// by a single dispatcher goroutine.
package session

import (
	"encoding/json"
	"fmt"
)

// Profile is the current-user payload returned by the server.
type Profile struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Picture        string `json:"picture"`
	XP             int    `json:"xp"`
	Level          int    `json:"level"`
	TasksCompleted int    `json:"tasksCompleted"`
	IsOptIn        bool   `json:"isOptIn"`

	// Raw is the full response body, including fields Profile does not
	// model (task lists, timestamps).
	Raw json.RawMessage `json:"-"`
}

// AuthKind discriminates AuthState.
type AuthKind int

const (
	// Unknown means no reconciliation has finished yet.
	Unknown AuthKind = iota
	Authenticated
	Anonymous
)

func (k AuthKind) String() string {
	switch k {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "unknown"
}

// AuthState is what the client believes about its session: Unknown,
// Authenticated with a Profile, or Anonymous. The zero value is Unknown.
type AuthState struct {
	kind    AuthKind
	profile *Profile
}

// UnknownState is the state before the first check completes.
func UnknownState() AuthState { return AuthState{kind: Unknown} }

// AnonymousState is the checked, logged-out state.
func AnonymousState() AuthState { return AuthState{kind: Anonymous} }

// AuthenticatedAs is the checked, logged-in state for p.
func AuthenticatedAs(p Profile) AuthState {
	return AuthState{kind: Authenticated, profile: &p}
}

// Kind reports which variant s is.
func (s AuthState) Kind() AuthKind { return s.kind }

// Profile returns the logged-in user's profile. ok is false unless s is
// Authenticated.
func (s AuthState) Profile() (Profile, bool) {
	if s.kind != Authenticated || s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// UserID is the logged-in user's ID, or "".
func (s AuthState) UserID() string {
	if p, ok := s.Profile(); ok {
		return p.UserID
	}
	return ""
}

func (s AuthState) String() string {
	if s.kind == Authenticated {
		return fmt.Sprintf("authenticated(%s)", s.UserID())
	}
	return s.kind.String()
}
