package admin

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PinProvider supplies the current admin PIN for request authentication.
type PinProvider interface {
	Pin(ctx context.Context) (string, error)
}

// PinAuthMiddleware guards admin routes with the X-Admin-Pin header.
func PinAuthMiddleware(pins PinProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Pin")
			if provided == "" {
				writeError(w, http.StatusUnauthorized, "Missing X-Admin-Pin header")
				return
			}

			pin, err := pins.Pin(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to verify PIN")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(pin)) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid PIN")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware creates middleware for logging HTTP requests.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Admin request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
