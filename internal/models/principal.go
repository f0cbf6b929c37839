package models

import "time"

// Principal is the identity resolved for a connection.
type Principal struct {
	UserID    string
	Name      string
	Avatar    *string
	ExpiresAt time.Time
}

// Authenticated is false for a nil principal, a missing user id, or an
// expired credential.
func (p *Principal) Authenticated() bool {
	if p == nil || p.UserID == "" {
		return false
	}
	return p.ExpiresAt.IsZero() || time.Now().Before(p.ExpiresAt)
}
