package model

import "time"

// Session is the server-side record behind a session cookie.
//
// The cookie itself carries a signed token naming the user and this
// session's ID. Signing proves the token was issued by us; the record lets
// logout take effect immediately instead of waiting for expiry.
type Session struct {
	ID        string     `json:"id"                  bson:"_id"`
	UserID    string     `json:"userId"              bson:"userId"`
	CreatedAt time.Time  `json:"createdAt"           bson:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"           bson:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
