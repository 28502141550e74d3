package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/memberportal/internal/models"
	"github.com/crucial707/memberportal/internal/session"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
)

type key string

const SessionKey key = "session"

// RequireSession lets a request through only when its session is
// authenticated and not expired; every other request is redirected to "/".
// A failing session backend yields 500.
func RequireSession(store sessions.Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Get(r, cookieName)
			if err != nil {
				slog.Error("session gate: load session",
					"request_id", chimw.GetReqID(r.Context()),
					"path", r.URL.Path,
					"err", err)
				writeInternalError(w)
				return
			}

			rec := session.RecordFrom(sess)
			if !rec.Active(time.Now()) {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the record stored by RequireSession.
func SessionFromContext(ctx context.Context) (models.SessionRecord, bool) {
	rec, ok := ctx.Value(SessionKey).(models.SessionRecord)
	return rec, ok
}
