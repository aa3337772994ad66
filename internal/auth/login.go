package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
)

const (
	LoginOTPTTL         = 5 * time.Minute
	maxLoginOTPAttempts = 5
)

var loginOTPOpts = totp.ValidateOpts{
	Period:    uint(LoginOTPTTL / time.Second),
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// LoginStore adds the atomic counter the OTP attempt limit needs.
type LoginStore interface {
	KeyValueStore
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// OTPNotifier delivers the one-time password of a login attempt.
type OTPNotifier interface {
	SendLoginOTP(ctx context.Context, to, name, code string) error
}

// LoginChallenge is returned by the first login step.
type LoginChallenge struct {
	ExpiresAt time.Time `json:"expires_at"`
	Channel   string    `json:"channel"`
}

// LoginResult is returned once the OTP has been verified.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        UserClaims
}

// pendingLogin is stored between the two login steps.
type pendingLogin struct {
	Secret    string     `json:"secret"`
	User      UserClaims `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// AuthService implements the web login flow: login code, emailed OTP, session + token.
type AuthService struct {
	directory accounts.Directory
	store     LoginStore
	sessions  *SessionService
	codec     *TokenCodec
	notifier  OTPNotifier
	audit     audit.AuditLogger
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(directory accounts.Directory, store LoginStore, sessions *SessionService, codec *TokenCodec, notifier OTPNotifier, auditLogger audit.AuditLogger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.NopAuditLogger{}
	}
	return &AuthService{
		directory: directory,
		store:     store,
		sessions:  sessions,
		codec:     codec,
		notifier:  notifier,
		audit:     auditLogger,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

func loginOTPKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return "login_otp:" + hex.EncodeToString(sum[:])
}

// loginAttemptsKey holds the INCR counter of verify attempts for one challenge.
func loginAttemptsKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return "login_otp_attempts:" + hex.EncodeToString(sum[:])
}

// ClaimsFromAccount maps a directory account onto token claims.
func ClaimsFromAccount(acc *accounts.Account) UserClaims {
	profile := make(map[string]any, len(acc.Profile)+1)
	for k, v := range acc.Profile {
		profile[k] = v
	}
	if acc.Company != "" {
		profile["company"] = acc.Company
	}
	if len(profile) == 0 {
		profile = nil
	}
	return UserClaims{
		UserID:      acc.UserID,
		Email:       strings.ToLower(acc.Email),
		PhoneNumber: acc.PhoneNumber,
		Name:        acc.Name,
		Profile:     profile,
	}
}

// RequestLoginOTP resolves the login code and emails a fresh one-time password.
// A new request replaces any pending attempt for the same code. Delivery is
// best-effort: a failed notification is logged and the challenge still stands.
func (s *AuthService) RequestLoginOTP(ctx context.Context, loginCode string) (*LoginChallenge, error) {
	loginCode = strings.TrimSpace(loginCode)

	acc, err := s.directory.FindByLoginCode(ctx, loginCode)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			s.audit.Log(ctx, "anonymous", audit.EventLoginFailed, "login_code", map[string]string{"reason": "unknown_code"})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolve login code: %w", err)
	}

	user := ClaimsFromAccount(acc)
	if user.Email == "" {
		s.logger.Warn("login_rejected_no_email", "user_id", user.UserID)
		return nil, ErrInvalidCredentials
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "LaventeCare",
		AccountName: user.Email,
		Period:      loginOTPOpts.Period,
		Digits:      loginOTPOpts.Digits,
		Algorithm:   loginOTPOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate otp secret: %w", err)
	}

	now := s.now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, loginOTPOpts)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	pending := pendingLogin{
		Secret:    key.Secret(),
		User:      user,
		ExpiresAt: now.Add(LoginOTPTTL),
	}
	if _, err := s.store.Delete(ctx, loginAttemptsKey(loginCode)); err != nil {
		return nil, fmt.Errorf("reset login attempts: %w", err)
	}
	if err := s.store.Set(ctx, loginOTPKey(loginCode), pending, LoginOTPTTL); err != nil {
		return nil, fmt.Errorf("store login otp: %w", err)
	}

	if err := s.notifier.SendLoginOTP(ctx, user.Email, user.Name, code); err != nil {
		s.logger.Error("login_otp_delivery_failed", "user_id", user.UserID, "error", err)
	}

	s.audit.Log(ctx, user.Identifier(), audit.EventLoginOTPRequested, "login_code", nil)
	return &LoginChallenge{ExpiresAt: pending.ExpiresAt, Channel: "email"}, nil
}

// VerifyLoginOTP completes the login: on success the pending attempt is consumed,
// a web session is saved and a bearer token issued. At most maxLoginOTPAttempts
// passcodes are checked per challenge; the challenge is discarded once the last
// one fails.
func (s *AuthService) VerifyLoginOTP(ctx context.Context, loginCode, passcode string) (*LoginResult, error) {
	loginCode = strings.TrimSpace(loginCode)
	passcode = strings.TrimSpace(passcode)
	key := loginOTPKey(loginCode)

	var pending pendingLogin
	found, err := s.store.GetJSON(ctx, key, &pending)
	if err != nil {
		return nil, fmt.Errorf("load login otp: %w", err)
	}
	if !found {
		return nil, ErrInvalidOTP
	}

	now := s.now()
	window := pending.ExpiresAt.Sub(now)
	if window <= 0 {
		window = LoginOTPTTL
	}
	attempts, err := s.store.Incr(ctx, loginAttemptsKey(loginCode), window)
	if err != nil {
		return nil, fmt.Errorf("count login attempt: %w", err)
	}
	if attempts > maxLoginOTPAttempts {
		s.discardChallenge(ctx, loginCode)
		s.audit.Log(ctx, pending.User.Identifier(), audit.EventLoginFailed, "login_otp", map[string]string{"reason": "too_many_attempts"})
		return nil, ErrInvalidOTP
	}

	valid, _ := totp.ValidateCustom(passcode, pending.Secret, now, loginOTPOpts)
	if !valid {
		if attempts == maxLoginOTPAttempts {
			s.discardChallenge(ctx, loginCode)
		}
		s.audit.Log(ctx, pending.User.Identifier(), audit.EventLoginFailed, "login_otp", map[string]string{"reason": "invalid_otp"})
		return nil, ErrInvalidOTP
	}

	// only the request that removes the challenge may log in with it
	consumed, err := s.store.Delete(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("consume login otp: %w", err)
	}
	if !consumed {
		return nil, ErrInvalidOTP
	}
	if _, err := s.store.Delete(ctx, loginAttemptsKey(loginCode)); err != nil {
		s.logger.Warn("login_attempts_reset_failed", "error", err)
	}

	result, err := s.startSession(ctx, pending.User)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, pending.User.Identifier(), audit.EventLoginSuccess, "session", map[string]string{"session_type": string(SessionWeb)})
	return result, nil
}

func (s *AuthService) discardChallenge(ctx context.Context, loginCode string) {
	if _, err := s.store.Delete(ctx, loginOTPKey(loginCode)); err != nil {
		s.logger.Warn("login_otp_discard_failed", "error", err)
	}
}

func (s *AuthService) startSession(ctx context.Context, user UserClaims) (*LoginResult, error) {
	if err := s.sessions.SaveSession(ctx, user.Identifier(), user, SessionWeb, DefaultSessionTTL); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.codec.CreateToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// Refresh resets the session TTL and issues a new token with a new expiry.
func (s *AuthService) Refresh(ctx context.Context, id *Identity) (*LoginResult, error) {
	userID := id.User.Identifier()

	extended, err := s.sessions.ExtendSession(ctx, userID, SessionWeb, DefaultSessionTTL)
	if err != nil {
		return nil, err
	}
	if !extended {
		return nil, ErrSessionRevoked
	}

	token, expiresAt, err := s.codec.CreateToken(id.User)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, userID, audit.EventSessionRefresh, "session", nil)
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: id.User}, nil
}

// Logout deletes the web session. Outstanding tokens stop passing the gate.
func (s *AuthService) Logout(ctx context.Context, id *Identity) error {
	userID := id.User.Identifier()
	if _, err := s.sessions.DeleteSession(ctx, userID, SessionWeb); err != nil {
		return err
	}
	s.audit.Log(ctx, userID, audit.EventLogout, "session", map[string]string{"session_type": string(SessionWeb)})
	return nil
}
