package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/crypto"
)

// Config holds all application configuration.
type Config struct {
	Env       string
	Port      string
	AppURL    string // public base URL, used to build WhatsApp login links
	SentryDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWESecret is the server-held key for bearer tokens. 32 raw bytes, 64 hex chars,
	// or any passphrase (stretched with HKDF).
	JWESecret string

	// SecretsKey opens "enc:" values in the secret settings below (hex, 32 bytes).
	SecretsKey string

	SQLServerDSN string

	SMTP SMTPConfig

	EmailQueueCapacity int

	CRM        OAuthClientConfig
	SharePoint OAuthClientConfig
	// OAuthSingleFlight coalesces concurrent token refreshes per cache.
	OAuthSingleFlight bool

	Microsoft MicrosoftConfig
	WhatsApp  WhatsAppConfig

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
}

type SMTPConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	From         string
	TLSMode      string // "starttls" or "tls"
	ValidateHost bool
}

// OAuthClientConfig configures a client-credentials token cache and the API it guards.
type OAuthClientConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string // optional override of the Entra ID token endpoint
	BaseURL      string
	SafetyMargin time.Duration
}

// MicrosoftConfig is the delegated (authorization code) app used by the WhatsApp login page.
type MicrosoftConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	VerifyToken   string
	AppSecret     string // verifies X-Hub-Signature-256 on webhook posts when set
	GraphBaseURL  string
}

// Load reads configuration from environment variables.
func Load() Config {
	crmURL := strings.TrimRight(os.Getenv("CRM_BASE_URL"), "/")

	return Config{
		Env:       getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		AppURL:    strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		SentryDSN: os.Getenv("SENTRY_DSN"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWESecret:  os.Getenv("JWE_SECRET"),
		SecretsKey: os.Getenv("SECRETS_KEY"),

		SQLServerDSN: os.Getenv("SQLSERVER_DSN"),

		SMTP: SMTPConfig{
			Host:         os.Getenv("SMTP_HOST"),
			Port:         getEnvAsInt("SMTP_PORT", 587),
			User:         os.Getenv("SMTP_USER"),
			Password:     os.Getenv("SMTP_PASSWORD"),
			From:         os.Getenv("SMTP_FROM"),
			TLSMode:      getEnv("SMTP_TLS_MODE", "starttls"),
			ValidateHost: getEnvAsBool("SMTP_VALIDATE_HOST", false),
		},

		EmailQueueCapacity: getEnvAsInt("EMAIL_QUEUE_CAPACITY", 1000),

		CRM: OAuthClientConfig{
			TenantID:     os.Getenv("CRM_TENANT_ID"),
			ClientID:     os.Getenv("CRM_CLIENT_ID"),
			ClientSecret: os.Getenv("CRM_CLIENT_SECRET"),
			Scope:        getEnv("CRM_SCOPE", defaultScope(crmURL)),
			TokenURL:     os.Getenv("CRM_TOKEN_URL"),
			BaseURL:      crmURL,
			SafetyMargin: getEnvAsDuration("CRM_TOKEN_MARGIN", 30*time.Second),
		},
		SharePoint: OAuthClientConfig{
			TenantID:     os.Getenv("SHAREPOINT_TENANT_ID"),
			ClientID:     os.Getenv("SHAREPOINT_CLIENT_ID"),
			ClientSecret: os.Getenv("SHAREPOINT_CLIENT_SECRET"),
			Scope:        getEnv("SHAREPOINT_SCOPE", "https://graph.microsoft.com/.default"),
			TokenURL:     os.Getenv("SHAREPOINT_TOKEN_URL"),
			BaseURL:      strings.TrimRight(getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"), "/"),
			SafetyMargin: getEnvAsDuration("SHAREPOINT_TOKEN_MARGIN", 60*time.Second),
		},
		OAuthSingleFlight: getEnvAsBool("OAUTH_SINGLE_FLIGHT", false),

		Microsoft: MicrosoftConfig{
			TenantID:     getEnv("MS_TENANT_ID", "common"),
			ClientID:     os.Getenv("MS_CLIENT_ID"),
			ClientSecret: os.Getenv("MS_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("MS_REDIRECT_URL"),
		},

		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			APIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
			VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			AppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
			GraphBaseURL:  strings.TrimRight(getEnv("WHATSAPP_GRAPH_URL", "https://graph.facebook.com"), "/"),
		},

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// Validate reports settings the process cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.JWESecret == "" && c.Env == "production" {
		errs = append(errs, errors.New("JWE_SECRET is required in production"))
	}
	if c.EmailQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("EMAIL_QUEUE_CAPACITY must be positive, got %d", c.EmailQueueCapacity))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	return errors.Join(errs...)
}

// RevealSecrets decrypts every sealed secret in place. Plain values pass through, so
// SECRETS_KEY is only needed once at least one value is sealed.
func (c *Config) RevealSecrets() error {
	var sealer *crypto.Sealer
	if c.SecretsKey != "" {
		s, err := crypto.NewSealer(c.SecretsKey)
		if err != nil {
			return fmt.Errorf("SECRETS_KEY: %w", err)
		}
		sealer = s
	}

	secrets := map[string]*string{
		"REDIS_PASSWORD":           &c.RedisPassword,
		"JWE_SECRET":               &c.JWESecret,
		"SQLSERVER_DSN":            &c.SQLServerDSN,
		"SMTP_PASSWORD":            &c.SMTP.Password,
		"CRM_CLIENT_SECRET":        &c.CRM.ClientSecret,
		"SHAREPOINT_CLIENT_SECRET": &c.SharePoint.ClientSecret,
		"MS_CLIENT_SECRET":         &c.Microsoft.ClientSecret,
		"WHATSAPP_ACCESS_TOKEN":    &c.WhatsApp.AccessToken,
		"WHATSAPP_APP_SECRET":      &c.WhatsApp.AppSecret,
	}

	var errs []error
	for name, field := range secrets {
		plain, err := sealer.Reveal(*field)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*field = plain
	}
	return errors.Join(errs...)
}

// Configured reports whether enough is set to request client-credentials tokens.
func (c OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && (c.TenantID != "" || c.TokenURL != "")
}

func defaultScope(resource string) string {
	if resource == "" {
		return ""
	}
	return resource + "/.default"
}

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

// Helper to read boolean env vars
func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	dur, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return dur
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(name string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
