package middleware

import (
	"net/http"
)

// DefaultMaxFormBytes bounds signup and login bodies. Three short fields never
// come close.
const DefaultMaxFormBytes = 16 << 10

// MaxBytes rejects bodies declared larger than maxBytes with 413 and caps the
// rest with http.MaxBytesReader. A capped body fails to parse, so its form
// fields read as empty.
func MaxBytes(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFormBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
