package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customMiddleware "github.com/Jeffreasy/LaventeCareGateway/internal/api/middleware"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
)

type stubGate struct {
	identity *auth.Identity
	err      error
}

func (g stubGate) Authenticate(context.Context, string) (*auth.Identity, error) {
	return g.identity, g.err
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		gate        stubGate
		wantStatus  int
		wantMessage string
		wantBearer  bool
	}{
		{
			name:       "Valid Identity",
			gate:       stubGate{identity: &auth.Identity{User: auth.UserClaims{Email: "ada@example.com"}}},
			wantStatus: http.StatusOK,
		},
		{
			name:        "Missing Header",
			gate:        stubGate{err: auth.ErrAuthorizationRequired},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authorization required",
			wantBearer:  true,
		},
		{
			name:        "Bad Token",
			gate:        stubGate{err: auth.ErrInvalidToken},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid or expired token",
			wantBearer:  true,
		},
		{
			name:        "Revoked Session",
			gate:        stubGate{err: auth.ErrSessionRevoked},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "please log in again",
			wantBearer:  true,
		},
		{
			name:        "Store Down",
			gate:        stubGate{err: fmt.Errorf("gate: %w", kvstore.ErrUnavailable)},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id := customMiddleware.MustGetIdentity(r.Context())
				_, _ = w.Write([]byte(id.User.Email))
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			rr := httptest.NewRecorder()
			customMiddleware.AuthMiddleware(tt.gate)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantMessage != "" {
				assert.Contains(t, rr.Body.String(), tt.wantMessage)
			} else {
				assert.Equal(t, "ada@example.com", rr.Body.String())
			}
			if tt.wantBearer {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGetIdentity_Missing(t *testing.T) {
	_, err := customMiddleware.GetIdentity(context.Background())
	assert.Error(t, err)
	assert.Panics(t, func() { customMiddleware.MustGetIdentity(context.Background()) })
}

func TestCORS(t *testing.T) {
	mw := customMiddleware.CORS([]string{"https://app.example.com"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Preflight Allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("Preflight Rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("No Origin Passes Through", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestIPRateLimiter(t *testing.T) {
	limiter := customMiddleware.NewIPRateLimiter(0.001, 2)
	t.Cleanup(limiter.Close)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.7:1000"))
	assert.Equal(t, http.StatusOK, call("203.0.113.7:1001"), "ports do not split the bucket")
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.7:1002"))
	assert.Equal(t, http.StatusOK, call("198.51.100.1:1000"), "other clients are unaffected")
}

func TestPanicRecovery(t *testing.T) {
	handler := customMiddleware.PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}
