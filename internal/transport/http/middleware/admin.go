package httpmw

import (
	"crypto/subtle"
	"net/http"
)

// AdminMiddleware gates facilitator-only endpoints behind a shared secret
// carried in the X-Admin-Secret header. An empty configured secret disables
// the check (local/dev setups).
func AdminMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.Header.Get("X-Admin-Secret")
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
