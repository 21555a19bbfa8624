package model

import (
	"encoding/json"
	"time"
)

// Role is the authorization role carried by an authenticated identity.
type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated user as reported by the login endpoint.
type Identity struct {
	// ID is the server-side user identifier.
	ID string `json:"_id"`

	// Username is the display name shown in the header.
	Username string `json:"username"`

	// Email is the login address, when the server includes it.
	Email string `json:"email,omitempty"`

	// Role decides which dashboards the identity may open.
	Role Role `json:"role"`
}

// UnmarshalJSON accepts both "_id" and "id" for the identifier.
func (i *Identity) UnmarshalJSON(data []byte) error {
	type alias Identity
	var raw struct {
		alias
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Identity(raw.alias)
	if i.ID == "" {
		i.ID = raw.AltID
	}
	return nil
}

// Session pairs an identity with the bearer token that authenticates it.
// A Session is never partially populated: both fields are set or the
// session does not exist.
type Session struct {
	Identity    Identity
	AccessToken string

	// ExpiresAt is the token expiry when the token is a JWT carrying an
	// exp claim. Zero for opaque tokens.
	ExpiresAt time.Time
}

// Expired reports whether the token expiry is known and not after now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
