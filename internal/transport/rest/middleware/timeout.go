package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context. Store calls that run past it fail with
// context.DeadlineExceeded, which handlers report as 503.
func Timeout(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
