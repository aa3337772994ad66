package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/whatsapp"
)

const (
	maxWebhookBytes = 1 << 20
	inboundTimeout  = 15 * time.Second
)

type WhatsAppHandler struct {
	service     *whatsapp.Service
	verifyToken string
	appSecret   string
}

func NewWhatsAppHandler(service *whatsapp.Service, verifyToken, appSecret string) *WhatsAppHandler {
	return &WhatsAppHandler{service: service, verifyToken: verifyToken, appSecret: appSecret}
}

// VerifyWebhook answers Meta's subscription handshake.
func (h *WhatsAppHandler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.verifyToken)
	if !ok {
		slog.Warn("whatsapp_webhook_verification_failed", "ip", helpers.ClientIP(r))
		helpers.RespondError(w, http.StatusForbidden, "verification failed")
		return
	}

	helpers.RespondText(w, http.StatusOK, challenge)
}

// ReceiveWebhook handles inbound messages. Per-message failures are logged and the
// webhook is still acknowledged, otherwise Meta keeps redelivering it.
func (h *WhatsAppHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.appSecret != "" && !whatsapp.ValidSignature(body, r.Header.Get("X-Hub-Signature-256"), h.appSecret) {
		slog.Warn("whatsapp_webhook_bad_signature", "ip", r.RemoteAddr)
		helpers.RespondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), inboundTimeout)
	defer cancel()

	for _, msg := range payload.Messages() {
		if err := h.service.HandleInbound(ctx, msg); err != nil {
			slog.Error("whatsapp_inbound_failed", "error", err, "type", msg.Type)
		}
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// AuthPage sends the browser on to Microsoft sign-in for a login link token.
func (h *WhatsAppHandler) AuthPage(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		helpers.RespondError(w, http.StatusBadRequest, "token is required")
		return
	}

	redirect, err := h.service.AuthRedirect(r.Context(), token)
	if err != nil {
		respondServiceError(w, r, "whatsapp_auth_page", err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

type WhatsAppAuthResponse struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Callback completes the Microsoft sign-in started by AuthPage.
func (h *WhatsAppHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		slog.Warn("whatsapp_oauth_denied", "error", providerErr, "description", q.Get("error_description"))
		helpers.RespondError(w, http.StatusBadRequest, "microsoft sign-in was cancelled or failed")
		return
	}
	if q.Get("code") == "" || q.Get("state") == "" {
		helpers.RespondError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	result, err := h.service.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		respondServiceError(w, r, "whatsapp_oauth_callback", err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, newWhatsAppAuthResponse(result))
}

type AssociateRequest struct {
	Token     string `json:"token"`
	LoginCode string `json:"login_code"`
}

// Associate links the pending Microsoft identity to an app account by login code.
func (h *WhatsAppHandler) Associate(w http.ResponseWriter, r *http.Request) {
	var req AssociateRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	req.LoginCode = strings.TrimSpace(req.LoginCode)
	if req.Token == "" || req.LoginCode == "" {
		helpers.RespondError(w, http.StatusBadRequest, "token and login_code are required")
		return
	}

	result, err := h.service.Associate(r.Context(), req.Token, req.LoginCode)
	if err != nil {
		respondServiceError(w, r, "whatsapp_associate", err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, newWhatsAppAuthResponse(result))
}

func newWhatsAppAuthResponse(result *whatsapp.Result) WhatsAppAuthResponse {
	resp := WhatsAppAuthResponse{Status: string(result.Outcome), Token: result.Token}
	if result.User != nil {
		resp.Name = result.User.Name
	}
	return resp
}
