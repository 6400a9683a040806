package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

// RequestLogger writes one structured line per request.
func RequestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			fields := logging.Fields{
				"method":         r.Method,
				"path":           r.URL.Path,
				"status":         ww.Status(),
				"latency_ms":     time.Since(start).Milliseconds(),
				"correlation_id": CorrelationIDFrom(r.Context()),
				"remote_addr":    r.RemoteAddr,
			}
			if p, ok := auth.PrincipalFrom(r.Context()); ok {
				fields["user_id"] = p.UserID
			}

			entry := logger.WithFields(fields)
			switch {
			case ww.Status() >= 500:
				entry.Error("request completed")
			case ww.Status() >= 400:
				entry.Warn("request completed")
			default:
				entry.Info("request completed")
			}
		})
	}
}
