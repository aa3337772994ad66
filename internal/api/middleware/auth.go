package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
)

// Authenticator resolves the Authorization header to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*auth.Identity, error)
}

// AuthMiddleware rejects requests that do not carry a valid bearer token backed by
// a live web session. Every auth failure is the same 401; the message differs.
func AuthMiddleware(gate Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, kvstore.ErrUnavailable) {
					slog.Error("auth_store_unavailable", "error", err, "path", r.URL.Path)
					helpers.RespondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
					return
				}
				if !errors.Is(err, auth.ErrAuthorizationRequired) {
					slog.Warn("auth_rejected", "error", err, "ip", r.RemoteAddr)
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				helpers.RespondError(w, http.StatusUnauthorized, authMessage(err))
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			SetSentryUser(ctx, identity.User.UserID, identity.User.Identifier(), r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authMessage(err error) string {
	for _, known := range []error{auth.ErrAuthorizationRequired, auth.ErrInvalidToken, auth.ErrMalformedToken, auth.ErrSessionRevoked} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return auth.ErrInvalidToken.Error()
}
