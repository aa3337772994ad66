package auth

import "errors"

// Authentication failures. The HTTP layer answers all of them with the same 401;
// the distinction only reaches logs and the message text.
var (
	ErrAuthorizationRequired = errors.New("authorization required")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrMalformedToken        = errors.New("malformed token")
	ErrSessionRevoked        = errors.New("session invalid or expired, please log in again")
)

// Login failures.
var (
	ErrInvalidCredentials = errors.New("invalid login code")
	ErrInvalidOTP         = errors.New("invalid or expired one-time password")
)

// UserClaims is the identity carried in sessions and bearer tokens. The identifier
// fields are typed; provider-specific profile data rides along in Profile.
type UserClaims struct {
	UserID      string         `json:"user_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Name        string         `json:"name,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// Identifier is the session key for this user: email, or phone number for
// WhatsApp-only principals.
func (c UserClaims) Identifier() string {
	if c.Email != "" {
		return c.Email
	}
	return c.PhoneNumber
}
