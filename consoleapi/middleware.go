package consoleapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	auditview "github.com/kafeiih/go-auditview"
)

// RequestLogger logs one line per request and propagates the correlation id
// into the request context so outgoing log fetches carry it.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := ExtractCorrelationID(r)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set("X-Correlation-ID", correlationID)
			r = r.WithContext(auditview.WithCorrelationID(r.Context(), correlationID))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "console request",
				"method", r.Method,
				"route", ExtractRoute(r),
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"correlation_id", correlationID,
				"ip", ExtractIP(r.RemoteAddr),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// ExtractRoute returns chi's matched route pattern (e.g. /v1/logs/filter),
// falling back to the raw path when no route matched.
func ExtractRoute(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return strings.TrimSuffix(pattern, "/*")
	}
	return r.URL.Path
}

// ExtractCorrelationID returns request correlation id from common headers.
// Header lookup is canonicalized, so X-Request-Id matches too.
func ExtractCorrelationID(r *http.Request) string {
	if v := r.Header.Get("X-Correlation-ID"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Request-ID"); v != "" {
		return v
	}

	return ""
}

// ExtractIP strips the port from a host:port address.
func ExtractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
