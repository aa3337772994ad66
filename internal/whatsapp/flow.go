package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/microsoft"
)

var (
	ErrTokenNotFound   = errors.New("login link is invalid or has expired")
	ErrNoPendingLink   = errors.New("no microsoft sign-in awaiting association")
	ErrProviderMissing = errors.New("microsoft sign-in is not configured")
)

// Outcome of a completed Microsoft sign-in.
type Outcome string

const (
	OutcomeLinked              Outcome = "linked"
	OutcomeAssociationRequired Outcome = "association_required"
)

// IdentityProvider is the browser sign-in used to authenticate a phone number.
type IdentityProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*microsoft.Identity, error)
}

// Messenger delivers text messages to a WhatsApp number.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// Result describes where a sign-in landed. Token is set when the caller still has to
// associate an account with it.
type Result struct {
	Outcome     Outcome
	PhoneNumber string
	Token       string
	User        *auth.UserClaims
}

// Service drives the WhatsApp login: inbound message → login link → Microsoft
// sign-in → (optional association) → WhatsApp session.
type Service struct {
	bridge    *Bridge
	provider  IdentityProvider
	directory accounts.Directory
	messenger Messenger
	audit     audit.AuditLogger
	logger    *slog.Logger
	appURL    string
}

func NewService(bridge *Bridge, provider IdentityProvider, directory accounts.Directory, messenger Messenger, auditLogger audit.AuditLogger, appURL string) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopAuditLogger{}
	}
	return &Service{
		bridge:    bridge,
		provider:  provider,
		directory: directory,
		messenger: messenger,
		audit:     auditLogger,
		logger:    slog.Default().With("component", "whatsapp"),
		appURL:    strings.TrimRight(appURL, "/"),
	}
}

// LoginLink is the page the user opens from WhatsApp.
func (s *Service) LoginLink(token string) string {
	return s.appURL + "/api/v1/whatsapp/auth/page?token=" + url.QueryEscape(token)
}

// HandleInbound answers one received message. Signed-in numbers get a short
// acknowledgement; anyone else gets a fresh login link on every message.
func (s *Service) HandleInbound(ctx context.Context, msg Inbound) error {
	session, err := s.bridge.WhatsAppSession(ctx, msg.From)
	if err != nil {
		return err
	}

	if session != nil {
		if strings.EqualFold(msg.Text, "logout") {
			if _, err := s.bridge.sessions.DeleteSession(ctx, msg.From, auth.SessionWhatsApp); err != nil {
				return err
			}
			s.audit.Log(ctx, session.Identifier(), audit.EventLogout, "whatsapp:"+msg.From, map[string]string{"channel": "whatsapp"})
			return s.send(ctx, msg.From, "You have been signed out.")
		}
		name := session.Name
		if name == "" {
			name = session.Identifier()
		}
		return s.send(ctx, msg.From, fmt.Sprintf("You are signed in as %s.", name))
	}

	token, err := s.bridge.CreateAuthToken(ctx, msg.From, msg.BotPhone)
	if err != nil {
		return err
	}
	s.logger.Info("whatsapp_login_link_issued", "bot_phone", msg.BotPhone)

	return s.send(ctx, msg.From, "Please sign in with your Microsoft account to continue: "+s.LoginLink(token))
}

// AuthRedirect validates the one-time token and returns the Microsoft sign-in URL.
// The token is not consumed here.
func (s *Service) AuthRedirect(ctx context.Context, token string) (string, error) {
	if s.provider == nil || !s.provider.Configured() {
		return "", ErrProviderMissing
	}
	record, err := s.bridge.GetPhoneFromAuthToken(ctx, token)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrTokenNotFound
	}

	state, err := EncodeState(token)
	if err != nil {
		return "", err
	}
	return s.provider.AuthCodeURL(state), nil
}

// CompleteOAuth handles the provider callback. A Microsoft identity already linked
// to an account is promoted at once; otherwise it is parked until Associate.
func (s *Service) CompleteOAuth(ctx context.Context, code, rawState string) (*Result, error) {
	if s.provider == nil || !s.provider.Configured() {
		return nil, ErrProviderMissing
	}
	state, err := DecodeState(rawState)
	if err != nil {
		return nil, err
	}

	record, err := s.bridge.GetPhoneFromAuthToken(ctx, state.Token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTokenNotFound
	}

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	acc, err := s.directory.FindByMicrosoftEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		link := PendingLink{
			Token:          state.Token,
			PhoneNumber:    record.PhoneNumber,
			MicrosoftEmail: identity.Email,
			Name:           identity.Name,
		}
		if err := s.bridge.SavePendingLink(ctx, link); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeAssociationRequired, PhoneNumber: record.PhoneNumber, Token: state.Token}, nil
	case err != nil:
		return nil, err
	}

	return s.promote(ctx, state.Token, record.PhoneNumber, acc, identity.Email)
}

// Associate links the parked Microsoft identity to the account owning loginCode and
// completes the sign-in.
func (s *Service) Associate(ctx context.Context, token, loginCode string) (*Result, error) {
	link, err := s.bridge.GetPendingLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNoPendingLink
	}

	// the one-time token has to outlive the association step too
	record, err := s.bridge.GetPhoneFromAuthToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTokenNotFound
	}

	acc, err := s.directory.LinkMicrosoftAccount(ctx, loginCode, link.MicrosoftEmail)
	if err != nil {
		return nil, err
	}
	return s.promote(ctx, token, record.PhoneNumber, acc, link.MicrosoftEmail)
}

func (s *Service) promote(ctx context.Context, token, phone string, acc *accounts.Account, microsoftEmail string) (*Result, error) {
	user := auth.ClaimsFromAccount(acc)
	if user.Profile == nil {
		user.Profile = map[string]any{}
	}
	user.Profile["microsoft_email"] = microsoftEmail

	if err := s.bridge.SaveWhatsAppAuth(ctx, phone, user); err != nil {
		return nil, err
	}
	if _, err := s.bridge.DeleteAuthToken(ctx, token); err != nil {
		s.logger.Warn("whatsapp_token_cleanup_failed", "error", err)
	}
	if err := s.bridge.DeletePendingLink(ctx, token); err != nil {
		s.logger.Warn("whatsapp_pending_link_cleanup_failed", "error", err)
	}

	s.audit.Log(ctx, user.Identifier(), audit.EventWhatsAppLinked, "whatsapp:"+phone, nil)

	name := user.Name
	if name == "" {
		name = user.Identifier()
	}
	if err := s.send(ctx, phone, fmt.Sprintf("Welcome %s, you are now signed in. You can continue the conversation here.", name)); err != nil {
		s.logger.Warn("whatsapp_confirmation_failed", "error", err)
	}

	user.PhoneNumber = phone
	return &Result{Outcome: OutcomeLinked, PhoneNumber: phone, User: &user}, nil
}

func (s *Service) send(ctx context.Context, to, body string) error {
	if s.messenger == nil {
		return ErrNotConfigured
	}
	return s.messenger.SendText(ctx, to, body)
}
