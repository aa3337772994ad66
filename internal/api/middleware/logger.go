package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
)

// RequestLogger logs one line per completed request. Successful health and metrics
// probes are logged at debug level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case isProbe(r.URL.Path):
			level = slog.LevelDebug
		}

		slog.Log(r.Context(), level, "http_request_completed",
			"status", status,
			"method", r.Method,
			"route", routePattern(r),
			"path", r.URL.Path,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"req_id", middleware.GetReqID(r.Context()),
			"ip", helpers.ClientIP(r),
		)
	})
}

func isProbe(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// routePattern is the matched chi pattern, e.g. /api/v1/sharepoint/sites/{siteID}.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
