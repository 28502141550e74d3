package session

import (
	"time"

	"github.com/crucial707/memberportal/internal/models"
	"github.com/gorilla/sessions"
)

const (
	keyAuthenticated = "authenticated"
	keyUsername      = "username"
	keyExpiresAt     = "expires_at"
)

// Authenticate marks s as logged in as username until now+ttl. The cookie
// lifetime is set to the same ttl; call Save to persist.
func Authenticate(s *sessions.Session, username string, ttl time.Duration, now time.Time) {
	s.Values[keyAuthenticated] = true
	s.Values[keyUsername] = username
	s.Values[keyExpiresAt] = now.Add(ttl).Unix()
	s.Options.MaxAge = int(ttl / time.Second)
}

// Destroy clears s; the following Save removes it from the backend and
// expires the cookie.
func Destroy(s *sessions.Session) {
	s.Values = make(map[interface{}]interface{})
	s.Options.MaxAge = -1
}

// RecordFrom reads the session values into a SessionRecord.
func RecordFrom(s *sessions.Session) models.SessionRecord {
	var rec models.SessionRecord
	rec.Authenticated, _ = s.Values[keyAuthenticated].(bool)
	rec.Username, _ = s.Values[keyUsername].(string)
	if ts, ok := s.Values[keyExpiresAt].(int64); ok {
		rec.ExpiresAt = time.Unix(ts, 0)
	}
	return rec
}
