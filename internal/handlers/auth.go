package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/memberportal/internal/auth"
	"github.com/crucial707/memberportal/internal/metrics"
	"github.com/crucial707/memberportal/internal/models"
	"github.com/crucial707/memberportal/internal/render"
	"github.com/crucial707/memberportal/internal/repo"
	"github.com/crucial707/memberportal/internal/session"
	"github.com/crucial707/memberportal/internal/validation"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
)

// UserStore is the part of repo.UserRepo the auth flows need.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) ([]models.User, error)
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
}

// SessionStore is a sessions.Store that can reissue a session id.
type SessionStore interface {
	sessions.Store
	Renew(ctx context.Context, s *sessions.Session) error
}

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	Users      UserStore
	Hasher     auth.Hasher
	Sessions   SessionStore
	CookieName string
	SessionTTL time.Duration
	Renderer   *render.Renderer
	// Now defaults to time.Now.
	Now func() time.Time
}

// ==========================
// Signup Submit
// ==========================
func (h *AuthHandler) SignupSubmit(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		metrics.RecordAuthEvent("signup", outcomeInvalid)
		return
	}
	form := validation.SignupFromRequest(r)
	if err := form.Validate(); err != nil {
		h.rejectForm(w, r, "signup", err, "/signup")
		return
	}

	existing, err := h.Users.FindByEmail(r.Context(), form.Email)
	if err != nil {
		h.fail(w, r, "signup", "signup: find by email", err)
		return
	}
	if len(existing) > 0 {
		h.duplicate(w, r)
		return
	}

	hash, err := h.Hasher.Hash(form.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			h.rejectForm(w, r, "signup", err, "/signup")
			return
		}
		h.fail(w, r, "signup", "signup: hash password", err)
		return
	}

	user, err := h.Users.Create(r.Context(), form.Name, form.Email, hash)
	if err != nil {
		// Lost the race against a concurrent signup for the same email.
		if errors.Is(err, repo.ErrDuplicateEmail) {
			h.duplicate(w, r)
			return
		}
		h.fail(w, r, "signup", "signup: create user", err)
		return
	}

	if err := h.establish(w, r, user.Username); err != nil {
		h.fail(w, r, "signup", "signup: save session", err)
		return
	}

	metrics.RecordAuthEvent("signup", outcomeOK)
	slog.Info("signup",
		"request_id", chimw.GetReqID(r.Context()),
		"user_id", user.ID,
		"username", user.Username)
	http.Redirect(w, r, "/members", http.StatusFound)
}

// ==========================
// Login Submit
// ==========================
func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		metrics.RecordAuthEvent("login", outcomeInvalid)
		return
	}
	form := validation.LoginFromRequest(r)
	if err := form.Validate(); err != nil {
		h.rejectForm(w, r, "login", err, "/login")
		return
	}

	users, err := h.Users.FindByEmail(r.Context(), form.Email)
	if err != nil {
		h.fail(w, r, "login", "login: find by email", err)
		return
	}
	if len(users) != 1 {
		metrics.RecordAuthEvent("login", outcomeUnknown)
		slog.Info("login rejected",
			"request_id", chimw.GetReqID(r.Context()),
			"reason", outcomeUnknown,
			"matches", len(users))
		h.Renderer.Message(w, MsgNotRegistered, "/login")
		return
	}
	user := users[0]

	if err := h.Hasher.Compare(user.PasswordHash, form.Password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			h.fail(w, r, "login", "login: compare password", err)
			return
		}
		metrics.RecordAuthEvent("login", outcomeMismatch)
		slog.Info("login rejected",
			"request_id", chimw.GetReqID(r.Context()),
			"reason", outcomeMismatch,
			"user_id", user.ID)
		h.Renderer.Message(w, MsgWrongPassword, "/login")
		return
	}

	if err := h.establish(w, r, user.Username); err != nil {
		h.fail(w, r, "login", "login: save session", err)
		return
	}

	metrics.RecordAuthEvent("login", outcomeOK)
	slog.Info("login",
		"request_id", chimw.GetReqID(r.Context()),
		"user_id", user.ID,
		"username", user.Username)
	http.Redirect(w, r, "/members", http.StatusFound)
}

// ==========================
// Logout
// ==========================
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r, h.CookieName)
	if err != nil {
		internalError(w, r, h.Renderer, "logout: load session", err)
		return
	}
	session.Destroy(sess)
	if err := sess.Save(r, w); err != nil {
		internalError(w, r, h.Renderer, "logout: delete session", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// establish marks the request's session as authenticated for username and
// writes the cookie. A session the browser already had is replaced by one
// with a fresh id.
func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, username string) error {
	sess, err := h.Sessions.Get(r, h.CookieName)
	if err != nil {
		return err
	}
	if !sess.IsNew {
		if err := h.Sessions.Renew(r.Context(), sess); err != nil {
			return err
		}
	}
	session.Authenticate(sess, username, h.ttl(), h.now())
	return sess.Save(r, w)
}

// parseForm reads the request body. A body cut off by middleware.MaxBytes is
// answered with 413 instead of reading as an empty form.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	err := r.ParseForm()
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return false
	}
	http.Error(w, "bad form", http.StatusBadRequest)
	return false
}

func (h *AuthHandler) rejectForm(w http.ResponseWriter, r *http.Request, event string, err error, retryURL string) {
	outcome := outcomeInvalid
	message := err.Error()

	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		if verr.Kind == validation.KindMissing {
			outcome = outcomeMissing
		}
		slog.Debug(event+" form rejected",
			"request_id", chimw.GetReqID(r.Context()),
			"kind", verr.Kind.String(),
			"fields", verr.Fields)
	case errors.Is(err, auth.ErrPasswordTooLong):
		message = validation.SignupInvalidMessage
	}

	metrics.RecordAuthEvent(event, outcome)
	h.Renderer.Message(w, message, retryURL)
}

func (h *AuthHandler) duplicate(w http.ResponseWriter, r *http.Request) {
	metrics.RecordAuthEvent("signup", outcomeDuplicate)
	slog.Info("signup rejected",
		"request_id", chimw.GetReqID(r.Context()),
		"reason", outcomeDuplicate)
	h.Renderer.Message(w, MsgEmailTaken, "/signup")
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, event, msg string, err error) {
	metrics.RecordAuthEvent(event, outcomeError)
	internalError(w, r, h.Renderer, msg, err)
}

func (h *AuthHandler) ttl() time.Duration {
	if h.SessionTTL > 0 {
		return h.SessionTTL
	}
	return session.DefaultTTL
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
