package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewUser_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	u := NewUser("oidc|42", "ada@example.com", "Ada", "/p.png", now)

	if u.XP != 0 || u.Level != 1 || u.TasksCompleted != 0 {
		t.Errorf("gamification defaults = (xp %d, level %d, completed %d), want (0, 1, 0)",
			u.XP, u.Level, u.TasksCompleted)
	}
	if u.Tasks == nil || len(u.Tasks) != 0 {
		t.Errorf("Tasks = %v, want empty non-nil slice", u.Tasks)
	}
	if u.CompletedTasks == nil || len(u.CompletedTasks) != 0 {
		t.Errorf("CompletedTasks = %v, want empty non-nil slice", u.CompletedTasks)
	}
	if u.IsOptIn {
		t.Error("IsOptIn should default to false")
	}
	if !u.CreatedAt.Equal(now) || !u.LastLogin.Equal(now) {
		t.Errorf("timestamps = (%v, %v), want both %v", u.CreatedAt, u.LastLogin, now)
	}
	if u.ID != "" {
		t.Errorf("ID = %q, want empty (assigned by the repository)", u.ID)
	}
}

func TestUser_JSONUsesUserIDKey(t *testing.T) {
	u := NewUser("oidc|1", "", "", "/p.png", time.Now())
	u.ID = "u1"

	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if fields["userId"] != "u1" {
		t.Errorf(`fields["userId"] = %v, want "u1"`, fields["userId"])
	}
	if _, ok := fields["id"]; ok {
		t.Error(`JSON should not contain an "id" key`)
	}
	if tasks, ok := fields["tasks"].([]any); !ok || len(tasks) != 0 {
		t.Errorf(`fields["tasks"] = %v, want []`, fields["tasks"])
	}
}

func TestSession_Active(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"live", Session{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", Session{ExpiresAt: now.Add(-time.Second)}, false},
		{"revoked", Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}
