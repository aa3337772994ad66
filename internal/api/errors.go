package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
	"github.com/Jeffreasy/LaventeCareGateway/internal/microsoft"
	"github.com/Jeffreasy/LaventeCareGateway/internal/oauthcache"
	"github.com/Jeffreasy/LaventeCareGateway/internal/upstream"
	"github.com/Jeffreasy/LaventeCareGateway/internal/whatsapp"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// Known service errors and what the client sees. Anything else is a logged 500.
var errorMappings = []errorMapping{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()},
	{auth.ErrInvalidOTP, http.StatusUnauthorized, auth.ErrInvalidOTP.Error()},
	{auth.ErrSessionRevoked, http.StatusUnauthorized, auth.ErrSessionRevoked.Error()},
	{kvstore.ErrUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
	{oauthcache.ErrNotConfigured, http.StatusServiceUnavailable, "upstream system not configured"},
	{oauthcache.ErrUpstreamAuth, http.StatusBadGateway, "upstream authentication failed"},
	{upstream.ErrUpstreamStatus, http.StatusBadGateway, "upstream request failed"},
	{whatsapp.ErrInvalidState, http.StatusBadRequest, whatsapp.ErrInvalidState.Error()},
	{whatsapp.ErrTokenNotFound, http.StatusNotFound, whatsapp.ErrTokenNotFound.Error()},
	{whatsapp.ErrNoPendingLink, http.StatusNotFound, whatsapp.ErrNoPendingLink.Error()},
	{whatsapp.ErrProviderMissing, http.StatusServiceUnavailable, whatsapp.ErrProviderMissing.Error()},
	{accounts.ErrLinkRejected, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()},
	{microsoft.ErrExchangeFailed, http.StatusUnauthorized, "microsoft sign-in failed"},
	{microsoft.ErrInvalidIDToken, http.StatusUnauthorized, "microsoft sign-in failed"},
	{microsoft.ErrNoEmail, http.StatusBadRequest, microsoft.ErrNoEmail.Error()},
	{mailer.ErrWorkerStopping, http.StatusConflict, mailer.ErrWorkerStopping.Error()},
}

// respondServiceError maps err onto a status and a message safe for clients.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			level := slog.LevelWarn
			if m.status >= 500 {
				level = slog.LevelError
			}
			slog.Log(r.Context(), level, op+"_failed", "error", err, "status", m.status)
			helpers.RespondError(w, m.status, m.message)
			return
		}
	}

	slog.Error(op+"_failed", "error", err, "path", r.URL.Path)
	helpers.RespondError(w, http.StatusInternalServerError, "internal server error")
}
