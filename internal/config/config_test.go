package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/crypto"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("EMAIL_QUEUE_CAPACITY", "")
	t.Setenv("CRM_BASE_URL", "https://org.crm4.dynamics.com/")

	cfg := Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 1000, cfg.EmailQueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.CRM.SafetyMargin)
	assert.Equal(t, "https://org.crm4.dynamics.com", cfg.CRM.BaseURL)
	assert.Equal(t, "https://org.crm4.dynamics.com/.default", cfg.CRM.Scope)
	assert.Equal(t, "https://graph.microsoft.com/.default", cfg.SharePoint.Scope)
	assert.False(t, cfg.OAuthSingleFlight)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EMAIL_QUEUE_CAPACITY", "25")
	t.Setenv("CRM_TOKEN_MARGIN", "45s")
	t.Setenv("OAUTH_SINGLE_FLIGHT", "true")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:4321")
	t.Setenv("WHATSAPP_APP_SECRET", "meta-secret")

	cfg := Load()

	assert.Equal(t, 25, cfg.EmailQueueCapacity)
	assert.Equal(t, 45*time.Second, cfg.CRM.SafetyMargin)
	assert.True(t, cfg.OAuthSingleFlight)
	assert.Equal(t, 587, cfg.SMTP.Port, "invalid ints fall back to the default")
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:4321"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "meta-secret", cfg.WhatsApp.AppSecret)
}

func TestValidate(t *testing.T) {
	cfg := Config{Env: "production", EmailQueueCapacity: 0, RedisAddr: ""}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWE_SECRET")
	assert.Contains(t, err.Error(), "EMAIL_QUEUE_CAPACITY")
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	cfg = Config{Env: "development", EmailQueueCapacity: 10, RedisAddr: "localhost:6379"}
	assert.NoError(t, cfg.Validate())
}

func TestOAuthClientConfig_Configured(t *testing.T) {
	assert.False(t, OAuthClientConfig{}.Configured())
	assert.True(t, OAuthClientConfig{TenantID: "t", ClientID: "c", ClientSecret: "s"}.Configured())
	assert.True(t, OAuthClientConfig{TokenURL: "http://x", ClientID: "c", ClientSecret: "s"}.Configured())
}

func TestRevealSecrets(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	sealed, err := sealer.Seal("smtp-pass")
	require.NoError(t, err)

	t.Run("Sealed And Plain Values", func(t *testing.T) {
		cfg := Config{SecretsKey: key}
		cfg.SMTP.Password = sealed
		cfg.CRM.ClientSecret = "plain-secret"

		require.NoError(t, cfg.RevealSecrets())
		assert.Equal(t, "smtp-pass", cfg.SMTP.Password)
		assert.Equal(t, "plain-secret", cfg.CRM.ClientSecret)
	})

	t.Run("No Key With Plain Values", func(t *testing.T) {
		cfg := Config{JWESecret: "passphrase"}
		require.NoError(t, cfg.RevealSecrets())
		assert.Equal(t, "passphrase", cfg.JWESecret)
	})

	t.Run("Sealed Value Without Key", func(t *testing.T) {
		cfg := Config{}
		cfg.WhatsApp.AppSecret = sealed

		err := cfg.RevealSecrets()
		require.Error(t, err)
		assert.ErrorIs(t, err, crypto.ErrNoKey)
		assert.Contains(t, err.Error(), "WHATSAPP_APP_SECRET")
	})

	t.Run("Bad Key", func(t *testing.T) {
		cfg := Config{SecretsKey: "short"}
		assert.Error(t, cfg.RevealSecrets())
	})
}
