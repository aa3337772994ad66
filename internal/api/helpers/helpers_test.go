package helpers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"Valid", `{"name":"ada"}`, false},
		{"Unknown Field", `{"name":"ada","admin":true}`, true},
		{"Trailing Data", `{"name":"ada"}{"name":"bob"}`, true},
		{"Not JSON", `name=ada`, true},
		{"Empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var got body
			err := helpers.DecodeJSON(r, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ada", got.Name)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"203.0.113.7:51234", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"[::ffff:203.0.113.7]:80", "203.0.113.7"},
		{"203.0.113.7", "203.0.113.7"},
		{"not-an-ip", "not-an-ip"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		assert.Equal(t, tt.want, helpers.ClientIP(r), tt.remote)
	}
}

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	helpers.RespondError(rr, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"short and stout"}`, rr.Body.String())
}

func TestRespondText(t *testing.T) {
	rr := httptest.NewRecorder()
	helpers.RespondText(rr, http.StatusOK, "1158201444")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1158201444", rr.Body.String())
}
