// Package session implements server-side sessions behind a signed cookie.
//
// Store satisfies gorilla/sessions.Store. The cookie carries only an opaque
// session id signed with the cookie secret; the values live in a Backend,
// encrypted with a separate store secret.
package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// DefaultTTL is the session lifetime granted by a signup or login.
const DefaultTTL = time.Hour

// ErrNotFound is returned by a Backend for unknown or expired ids.
var ErrNotFound = errors.New("session not found")

// Backend persists encoded session values by id. Implementations expire
// records on their own once ttl has passed.
type Backend interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Store is a gorilla/sessions.Store backed by a Backend.
type Store struct {
	Options *sessions.Options

	backend     Backend
	cookieCodec *securecookie.SecureCookie
	valueCodec  *securecookie.SecureCookie
	newID       func() string
}

var _ sessions.Store = (*Store)(nil)

// CookieOptions returns the cookie attributes used for the session cookie.
func CookieOptions(secure bool) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(DefaultTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewStore signs cookies with cookieSecret and encrypts stored values with a
// key derived from storeSecret.
func NewStore(backend Backend, cookieSecret, storeSecret []byte, opts sessions.Options) *Store {
	cookieCodec := securecookie.New(cookieSecret, nil)
	if opts.MaxAge > 0 {
		cookieCodec.MaxAge(opts.MaxAge)
	}

	// Expiry of stored values is the backend's job.
	valueCodec := securecookie.New(deriveKey("hash", storeSecret), deriveKey("block", storeSecret))
	valueCodec.MaxAge(0)

	return &Store{
		Options:     &opts,
		backend:     backend,
		cookieCodec: cookieCodec,
		valueCodec:  valueCodec,
		newID:       uuid.NewString,
	}
}

// Get returns the session for name, cached per request.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie. A missing, forged
// or expired cookie yields a fresh session and no error; only backend
// failures are returned.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := s.cookieCodec.Decode(name, c.Value, &id); err != nil {
		return session, nil
	}

	values, err := s.load(r.Context(), name, id)
	if errors.Is(err, ErrNotFound) {
		return session, nil
	}
	if err != nil {
		return session, err
	}

	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save persists the session and writes its cookie. MaxAge < 0 deletes the
// stored record and expires the cookie.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(ctx, session.ID); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = s.newID()
	}

	data, err := s.valueCodec.Encode(session.Name(), session.Values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := DefaultTTL
	if session.Options.MaxAge > 0 {
		ttl = time.Duration(session.Options.MaxAge) * time.Second
	}
	if err := s.backend.Save(ctx, session.ID, []byte(data), ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	encoded, err := s.cookieCodec.Encode(session.Name(), session.ID)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Renew drops the stored record behind session and clears its id and values,
// so the next Save issues a fresh id. Call it before a session gains
// privileges, otherwise a planted cookie would share the new login.
func (s *Store) Renew(ctx context.Context, session *sessions.Session) error {
	if session.ID != "" {
		if err := s.backend.Delete(ctx, session.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	session.ID = ""
	session.Values = make(map[interface{}]interface{})
	session.IsNew = true
	return nil
}

func (s *Store) load(ctx context.Context, name, id string) (map[interface{}]interface{}, error) {
	data, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	values := make(map[interface{}]interface{})
	if err := s.valueCodec.Decode(name, string(data), &values); err != nil {
		// Written under another store secret; unreadable is as good as gone.
		return nil, ErrNotFound
	}
	return values, nil
}

func deriveKey(label string, secret []byte) []byte {
	sum := sha256.Sum256(append([]byte(label+":"), secret...))
	return sum[:]
}
