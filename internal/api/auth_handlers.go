package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/api/middleware"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
)

type AuthHandler struct {
	service *auth.AuthService
}

func NewAuthHandler(service *auth.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginRequest starts a login with the user's app login code.
type LoginRequest struct {
	LoginCode string `json:"login_code"`
}

func (req *LoginRequest) Validate() error {
	req.LoginCode = strings.TrimSpace(req.LoginCode)
	if req.LoginCode == "" {
		return errors.New("login_code is required")
	}
	if len(req.LoginCode) > 64 {
		return errors.New("login_code too long")
	}
	return nil
}

type LoginResponse struct {
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	challenge, err := h.service.RequestLoginOTP(r.Context(), req.LoginCode)
	if err != nil {
		respondServiceError(w, r, "login_request", err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, LoginResponse{
		Message:   "a one-time password has been sent",
		Channel:   challenge.Channel,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// VerifyLoginRequest completes a login with the emailed one-time password.
type VerifyLoginRequest struct {
	LoginCode string `json:"login_code"`
	OTP       string `json:"otp"`
}

func (req *VerifyLoginRequest) Validate() error {
	req.LoginCode = strings.TrimSpace(req.LoginCode)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.LoginCode == "" || req.OTP == "" {
		return errors.New("login_code and otp are required")
	}
	return nil
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ExpiresIn   int64           `json:"expires_in"`
	User        auth.UserClaims `json:"user"`
}

func newTokenResponse(res *auth.LoginResult) TokenResponse {
	return TokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		ExpiresIn:   int64(time.Until(res.ExpiresAt) / time.Second),
		User:        res.User,
	}
}

func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.VerifyLoginOTP(r.Context(), req.LoginCode, req.OTP)
	if err != nil {
		respondServiceError(w, r, "login_verify", err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newTokenResponse(res))
}

// MeResponse is the identity the gate resolved for this request.
type MeResponse struct {
	User      auth.UserClaims `json:"user"`
	ExpiresAt time.Time       `json:"expires_at"`
	IssuedAt  time.Time       `json:"issued_at"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.MustGetIdentity(r.Context())
	helpers.RespondJSON(w, http.StatusOK, MeResponse{User: id.User, ExpiresAt: id.ExpiresAt, IssuedAt: id.IssuedAt})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := middleware.MustGetIdentity(r.Context())

	res, err := h.service.Refresh(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrSessionRevoked) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		respondServiceError(w, r, "session_refresh", err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newTokenResponse(res))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := middleware.MustGetIdentity(r.Context())

	if err := h.service.Logout(r.Context(), id); err != nil {
		respondServiceError(w, r, "logout", err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
