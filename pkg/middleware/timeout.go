package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/logger"
)

// Timeout puts a deadline on the request context. Analyses fan out to
// remote platforms through that context, so handlers return promptly once
// it expires; if one returns without writing, the client gets a 504.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			rw := &recorder{ResponseWriter: w}
			next.ServeHTTP(rw, r.WithContext(ctx))
			if rw.wrote || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}
			logger.FromContext(r.Context()).Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", d)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			w.Write([]byte(`{"error":"request timeout"}`))
		})
	}
}
