// Package whatsapp lets a WhatsApp user sign in through Microsoft in a browser and
// continue the conversation with a session bound to their phone number.
package whatsapp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
)

const (
	AuthTokenTTL = 300 * time.Second
	SessionTTL   = 86400 * time.Second
)

// AuthToken binds a one-time login link to the phone number that asked for it.
type AuthToken struct {
	Token          string    `json:"token"`
	PhoneNumber    string    `json:"phoneNumber"`
	BotPhoneNumber string    `json:"botPhoneNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PendingLink is a Microsoft identity waiting for the user's app login code.
type PendingLink struct {
	Token          string    `json:"token"`
	PhoneNumber    string    `json:"phoneNumber"`
	MicrosoftEmail string    `json:"microsoftEmail"`
	Name           string    `json:"name,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Bridge stores one-time tokens and promotes them to WhatsApp sessions.
type Bridge struct {
	store    auth.KeyValueStore
	sessions *auth.SessionService
	now      func() time.Time
}

func NewBridge(store auth.KeyValueStore, sessions *auth.SessionService) *Bridge {
	return &Bridge{store: store, sessions: sessions, now: time.Now}
}

func authTokenKey(token string) string   { return "whatsapp_auth_token:" + token }
func pendingLinkKey(token string) string { return "whatsapp_pending_link:" + token }

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateAuthToken mints a fresh one-time token for phone. Every call mints a new
// token; earlier ones stay valid until used or expired.
func (b *Bridge) CreateAuthToken(ctx context.Context, phone, botPhone string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	record := AuthToken{Token: token, PhoneNumber: phone, BotPhoneNumber: botPhone, CreatedAt: b.now().UTC()}
	if err := b.store.Set(ctx, authTokenKey(token), record, AuthTokenTTL); err != nil {
		return "", fmt.Errorf("save whatsapp auth token: %w", err)
	}
	return token, nil
}

// GetPhoneFromAuthToken returns nil, nil for unknown, used or expired tokens.
func (b *Bridge) GetPhoneFromAuthToken(ctx context.Context, token string) (*AuthToken, error) {
	if token == "" {
		return nil, nil
	}
	var record AuthToken
	found, err := b.store.GetJSON(ctx, authTokenKey(token), &record)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp auth token: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &record, nil
}

func (b *Bridge) DeleteAuthToken(ctx context.Context, token string) (bool, error) {
	removed, err := b.store.Delete(ctx, authTokenKey(token))
	if err != nil {
		return false, fmt.Errorf("delete whatsapp auth token: %w", err)
	}
	return removed, nil
}

// SaveWhatsAppAuth promotes phone to an authenticated WhatsApp session.
func (b *Bridge) SaveWhatsAppAuth(ctx context.Context, phone string, user auth.UserClaims) error {
	user.PhoneNumber = phone
	return b.sessions.SaveSession(ctx, phone, user, auth.SessionWhatsApp, SessionTTL)
}

func (b *Bridge) IsWhatsAppAuthenticated(ctx context.Context, phone string) (bool, error) {
	return b.sessions.IsAuthenticated(ctx, phone, auth.SessionWhatsApp)
}

// WhatsAppSession returns the live session for phone, or nil.
func (b *Bridge) WhatsAppSession(ctx context.Context, phone string) (*auth.Session, error) {
	return b.sessions.GetSession(ctx, phone, auth.SessionWhatsApp)
}

func (b *Bridge) SavePendingLink(ctx context.Context, link PendingLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = b.now().UTC()
	}
	if err := b.store.Set(ctx, pendingLinkKey(link.Token), link, AuthTokenTTL); err != nil {
		return fmt.Errorf("save pending link: %w", err)
	}
	return nil
}

func (b *Bridge) GetPendingLink(ctx context.Context, token string) (*PendingLink, error) {
	var link PendingLink
	found, err := b.store.GetJSON(ctx, pendingLinkKey(token), &link)
	if err != nil {
		return nil, fmt.Errorf("load pending link: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &link, nil
}

func (b *Bridge) DeletePendingLink(ctx context.Context, token string) error {
	if _, err := b.store.Delete(ctx, pendingLinkKey(token)); err != nil {
		return fmt.Errorf("delete pending link: %w", err)
	}
	return nil
}
