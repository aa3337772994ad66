package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendText(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody textMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIVersion: "v21.0", PhoneNumberID: "555", AccessToken: "wa-token"})
	require.NoError(t, client.SendText(context.Background(), "31612345678", "hi"))

	assert.Equal(t, "/v21.0/555/messages", gotPath)
	assert.Equal(t, "Bearer wa-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody.MessagingProduct)
	assert.Equal(t, "31612345678", gotBody.To)
	assert.Equal(t, "text", gotBody.Type)
	assert.Equal(t, "hi", gotBody.Text.Body)
}

func TestClient_SendTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, PhoneNumberID: "555", AccessToken: "wa-token"})
	err := client.SendText(context.Background(), "31612345678", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "401")

	unconfigured := NewClient(ClientConfig{BaseURL: srv.URL})
	assert.False(t, unconfigured.Configured())
	assert.ErrorIs(t, unconfigured.SendText(context.Background(), "31612345678", "hi"), ErrNotConfigured)
}
