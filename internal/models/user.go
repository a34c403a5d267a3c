package models

import "time"

// User is the identity record owned by the account service. The core only
// writes LastSeenAt.
type User struct {
	ID         string     `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"lastSeen,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID   string
	Username string
}

// Session binds one live connection to an identity.
type Session struct {
	ConnID   string
	UserID   string
	Username string
}
