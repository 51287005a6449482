// Package model defines the data structures used throughout the application.
package model

import "time"

// Gamification defaults applied to every account created on first login.
const (
	DefaultXP    = 0
	DefaultLevel = 1
)

// TaskDoc is a task or project as stored on the user record. Task editing
// happens elsewhere, so the server keeps these documents opaque.
type TaskDoc = map[string]any

// User represents a QuestLog account.
//
// Identity is delegated to the OpenID Connect provider. OIDCID holds the
// provider's stable identifier for the person (its "id" claim, or the
// subject when no id is present) and is UNIQUE in every store, so one
// provider identity maps to exactly one account. ID is our own internal
// identifier (an xid) and is what sessions and clients refer to.
//
// The JSON shape matches what browser clients already consume:
// the current-user endpoint returns "userId", not "id".
type User struct {
	ID             string    `json:"userId"         bson:"_id"`
	OIDCID         string    `json:"oidcId"         bson:"oidcId"`
	Email          string    `json:"email"          bson:"email"`
	Name           string    `json:"name"           bson:"name"`
	Picture        string    `json:"picture"        bson:"picture"`
	XP             int       `json:"xp"             bson:"xp"`
	Level          int       `json:"level"          bson:"level"`
	TasksCompleted int       `json:"tasksCompleted" bson:"tasksCompleted"`
	Tasks          []TaskDoc `json:"tasks"          bson:"tasks"`
	CompletedTasks []TaskDoc `json:"completedTasks" bson:"completedTasks"`
	IsOptIn        bool      `json:"isOptIn"        bson:"isOptIn"`
	CreatedAt      time.Time `json:"createdAt"      bson:"createdAt"`
	LastLogin      time.Time `json:"lastLogin"      bson:"lastLogin"`
}

// NewUser builds the record inserted on a first login: profile fields from
// the provider, gamification fields at their defaults, and both timestamps
// set to now. The caller (the repository) assigns ID.
func NewUser(oidcID, email, name, picture string, now time.Time) *User {
	return &User{
		OIDCID:         oidcID,
		Email:          email,
		Name:           name,
		Picture:        picture,
		XP:             DefaultXP,
		Level:          DefaultLevel,
		TasksCompleted: 0,
		Tasks:          []TaskDoc{},
		CompletedTasks: []TaskDoc{},
		IsOptIn:        false,
		CreatedAt:      now,
		LastLogin:      now,
	}
}
