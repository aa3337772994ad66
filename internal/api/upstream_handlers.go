package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/api/middleware"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
	"github.com/Jeffreasy/LaventeCareGateway/internal/oauthcache"
	"github.com/Jeffreasy/LaventeCareGateway/internal/upstream"
)

// TokenCache is the operator view of a client-credentials cache.
type TokenCache interface {
	System() string
	Info() oauthcache.Info
	Clear()
}

type CRMClient interface {
	WhoAmI(ctx context.Context) (*upstream.WhoAmI, error)
}

type SiteClient interface {
	Site(ctx context.Context, siteID string) (*upstream.Site, error)
}

type UpstreamHandler struct {
	crm        CRMClient
	sharePoint SiteClient
	audit      audit.AuditLogger
}

func NewUpstreamHandler(crm CRMClient, sharePoint SiteClient, auditLogger audit.AuditLogger) *UpstreamHandler {
	if auditLogger == nil {
		auditLogger = audit.NopAuditLogger{}
	}
	return &UpstreamHandler{crm: crm, sharePoint: sharePoint, audit: auditLogger}
}

func (h *UpstreamHandler) CRMWhoAmI(w http.ResponseWriter, r *http.Request) {
	who, err := h.crm.WhoAmI(r.Context())
	if err != nil {
		respondServiceError(w, r, "crm_whoami", err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, who)
}

func (h *UpstreamHandler) SharePointSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		helpers.RespondError(w, http.StatusBadRequest, "site id is required")
		return
	}

	site, err := h.sharePoint.Site(r.Context(), siteID)
	if err != nil {
		respondServiceError(w, r, "sharepoint_site", err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, site)
}

// TokenInfo reports the cache state without touching the token endpoint.
func (h *UpstreamHandler) TokenInfo(cache TokenCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		helpers.RespondJSON(w, http.StatusOK, cache.Info())
	}
}

// ClearTokenCache forces the next upstream call to fetch a new token.
func (h *UpstreamHandler) ClearTokenCache(cache TokenCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache.Clear()

		actor := middleware.MustGetIdentity(r.Context()).User.Identifier()
		h.audit.Log(r.Context(), actor, audit.EventTokenCacheCleared, cache.System(), nil)

		helpers.RespondJSON(w, http.StatusOK, map[string]string{
			"message": "token cache cleared",
			"system":  cache.System(),
		})
	}
}
