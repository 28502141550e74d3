package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const internalErrorPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Error</title></head>
<body><p>Internal server error</p><a href="/">Home</a></body></html>
`

// Recoverer recovers from panics, logs the stack with request ID, and answers
// with the HTML 500 page.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := debug.Stack()
				reqID := chimw.GetReqID(r.Context())
				slog.Error("panic recovered",
					"request_id", reqID,
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(stack))
				writeInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, internalErrorPage)
}
