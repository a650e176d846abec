package auth

import "time"

// Identity is the claim set an external identity provider asserted about a
// principal. Token-verifying realms map provider-specific claims into this shape
// before deriving principals and grants from it.
type Identity struct {
	Subject   string // stable identifier (sub, samAccountName, username)
	Email     string
	Name      string
	Groups    []string
	ExpiresAt time.Time
}

// Expired reports whether the identity's assertion is no longer valid at now.
// A zero ExpiresAt never expires.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
