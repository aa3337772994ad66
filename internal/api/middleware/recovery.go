package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
)

// PanicRecovery captures panics, logs them with a stack trace and answers a generic 500.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				slog.Error("panic_recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"ip", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)

				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.Recover(err)
				}

				helpers.RespondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
