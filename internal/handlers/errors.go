package handlers

import (
	"log/slog"
	"net/http"

	"github.com/crucial707/memberportal/internal/render"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Messages rendered for recoverable outcomes.
const (
	MsgEmailTaken    = "Email already signed up"
	MsgNotRegistered = "User password is not registered yet"
	MsgWrongPassword = "Incorrect password combination."
	MsgPageNotFound  = "Page not found - 404"
)

// Outcome labels for metrics.RecordAuthEvent.
const (
	outcomeOK        = "ok"
	outcomeMissing   = "missing"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeUnknown   = "unknown_email"
	outcomeMismatch  = "mismatch"
	outcomeError     = "error"
)

// internalError logs err with the request id and renders the generic 500 page.
// The client never sees the cause.
func internalError(w http.ResponseWriter, r *http.Request, rnd *render.Renderer, msg string, err error) {
	slog.Error(msg,
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err)
	rnd.InternalError(w)
}
