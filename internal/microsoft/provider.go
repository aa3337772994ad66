// Package microsoft signs users in with the Microsoft identity platform
// (authorization-code flow) and resolves their email from the ID token.
package microsoft

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const defaultAuthority = "https://login.microsoftonline.com"

var (
	ErrExchangeFailed = errors.New("microsoft code exchange failed")
	ErrInvalidIDToken = errors.New("invalid microsoft id token")
	ErrNoEmail        = errors.New("microsoft account has no email")
)

// Config is the app registration. Authority overrides https://login.microsoftonline.com.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Authority    string
	HTTPClient   *http.Client
}

// Identity is the signed-in Microsoft user.
type Identity struct {
	Email    string
	Name     string
	ObjectID string
	TenantID string
}

type Provider struct {
	oauth     *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	authority string
	client    *http.Client
}

func NewProvider(cfg Config) *Provider {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	authority := strings.TrimRight(cfg.Authority, "/")
	endpoint := microsoft.AzureADEndpoint(tenant)
	if authority == "" {
		authority = defaultAuthority
	} else {
		endpoint = oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", authority, tenant),
			TokenURL: fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, tenant),
		}
	}

	keyCtx := oidc.ClientContext(context.Background(), client)
	keys := oidc.NewRemoteKeySet(keyCtx, fmt.Sprintf("%s/%s/discovery/v2.0/keys", authority, tenant))

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "User.Read"},
		},
		// multi-tenant issuers carry the user's tenant id, checked by prefix below
		verifier:  oidc.NewVerifier(authority, keys, &oidc.Config{ClientID: cfg.ClientID, SkipIssuerCheck: true}),
		authority: authority,
		client:    client,
	}
}

func (p *Provider) Configured() bool {
	return p.oauth.ClientID != "" && p.oauth.ClientSecret != "" && p.oauth.RedirectURL != ""
}

// AuthCodeURL is where the browser is sent to sign in. state comes back on the callback.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

type idTokenClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	Name              string `json:"name"`
	OID               string `json:"oid"`
	TID               string `json:"tid"`
	Issuer            string `json:"iss"`
}

// Exchange redeems the authorization code and returns the verified identity.
func (p *Provider) Exchange(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: no id_token in response", ErrInvalidIDToken)
	}

	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if !strings.HasPrefix(claims.Issuer, p.authority+"/") {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, claims.Issuer)
	}

	email := firstNonEmpty(claims.Email, claims.PreferredUsername, claims.UPN)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrNoEmail
	}

	return &Identity{
		Email:    strings.ToLower(email),
		Name:     claims.Name,
		ObjectID: claims.OID,
		TenantID: claims.TID,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
