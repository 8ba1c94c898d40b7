package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"request_id", chimw.GetReqID(r.Context()),
				"remote_ip", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				args = append(args, "user_id", claims.Subject, "role", string(claims.Role))
			}
			switch {
			case status >= 500:
				logger.Error("request failed", args...)
			case status >= 400:
				logger.Warn("request rejected", args...)
			default:
				logger.Info("request completed", args...)
			}
		})
	}
}
