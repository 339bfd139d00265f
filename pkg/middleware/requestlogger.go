package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/accounts/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// the correlation ID and the active trace. Mount it after RequestLogging and
// Tracing. Handlers fetch it with logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
