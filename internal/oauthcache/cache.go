// Package oauthcache keeps one client-credentials access token per upstream system
// and renews it shortly before it expires.
package oauthcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUpstreamAuth wraps every failed token request.
	ErrUpstreamAuth  = errors.New("upstream authentication failed")
	ErrNotConfigured = errors.New("oauth client not configured")
)

const (
	defaultTokenLifetime = time.Hour
	requestTimeout       = 10 * time.Second
)

// Config describes one client-credentials registration. TokenURL overrides the
// Entra ID v2 endpoint derived from TenantID. SingleFlight coalesces concurrent
// refreshes into one token request.
type Config struct {
	System       string
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string
	SafetyMargin time.Duration
	SingleFlight bool
	HTTPClient   *http.Client
}

// Info is a read-only diagnostic snapshot.
type Info struct {
	System           string     `json:"system"`
	HasToken         bool       `json:"hasToken"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	SecondsRemaining int64      `json:"secondsRemaining"`
	Configured       bool       `json:"configured"`
}

// TokenCache caches the access token of a single system. The fields are guarded by
// mu, but the lock is not held during the token request: without SingleFlight two
// concurrent misses both fetch and the last writer wins.
type TokenCache struct {
	cfg    Config
	cc     *clientcredentials.Config
	client *http.Client
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func New(cfg Config) *TokenCache {
	tokenURL := cfg.TokenURL
	if tokenURL == "" && cfg.TenantID != "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}

	var scopes []string
	if cfg.Scope != "" {
		scopes = strings.Fields(cfg.Scope)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	return &TokenCache{
		cfg: cfg,
		cc: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
		logger: slog.Default().With("system", cfg.System),
		now:    time.Now,
	}
}

func (c *TokenCache) System() string { return c.cfg.System }

func (c *TokenCache) Configured() bool {
	return c.cc.ClientID != "" && c.cc.ClientSecret != "" && c.cc.TokenURL != ""
}

// AccessToken returns the cached token while now < expiresAt - SafetyMargin,
// otherwise it requests a new one. Failures are not retried.
func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	if !c.Configured() {
		return "", fmt.Errorf("%w: %s: %w", ErrUpstreamAuth, c.cfg.System, ErrNotConfigured)
	}

	if !c.cfg.SingleFlight {
		return c.refresh(ctx)
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", false
	}
	if !c.now().Before(c.expiresAt.Add(-c.cfg.SafetyMargin)) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	start := c.now()
	tok, err := c.cc.Token(ctx)
	if err != nil {
		c.logger.Error("oauth_token_request_failed", "error", err)
		return "", fmt.Errorf("%w: %s: %v", ErrUpstreamAuth, c.cfg.System, err)
	}

	lifetime := defaultTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}
	expiresAt := start.Add(lifetime)

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiresAt = expiresAt
	c.mu.Unlock()

	c.logger.Info("oauth_token_refreshed", "expires_at", expiresAt.UTC().Format(time.RFC3339))
	return tok.AccessToken, nil
}

// Clear drops the cached token; the next AccessToken call fetches a new one.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
	c.logger.Info("oauth_token_cache_cleared")
}

func (c *TokenCache) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := Info{System: c.cfg.System, HasToken: c.token != "", Configured: c.Configured()}
	if info.HasToken {
		exp := c.expiresAt.UTC()
		info.ExpiresAt = &exp
		if remaining := c.expiresAt.Sub(c.now()); remaining > 0 {
			info.SecondsRemaining = int64(remaining / time.Second)
		}
	}
	return info
}
