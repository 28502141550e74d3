package models

import "time"

// SessionRecord is the per-browser state kept in the session store.
type SessionRecord struct {
	Authenticated bool
	Username      string
	// ExpiresAt is one session lifetime after the last signup or login.
	ExpiresAt time.Time
}

// Active reports whether the record grants access at now.
// A missing or expired session is indistinguishable from a logged-out one.
func (s SessionRecord) Active(now time.Time) bool {
	if !s.Authenticated {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
