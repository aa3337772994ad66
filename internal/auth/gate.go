package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Identity is what a request carries past the gate.
type Identity struct {
	User      UserClaims
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrAuthorizationRequired
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrAuthorizationRequired
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrAuthorizationRequired
	}
	return token, nil
}

// Gate checks a bearer token and the live web session behind it. Both must pass;
// a valid token for a logged-out user is rejected.
type Gate struct {
	codec    *TokenCodec
	sessions *SessionService
}

func NewGate(codec *TokenCodec, sessions *SessionService) *Gate {
	return &Gate{codec: codec, sessions: sessions}
}

// Authenticate returns one of the auth sentinels for a rejected request, or a
// wrapped store error when the session lookup itself failed.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}

	payload, ok := g.codec.VerifyToken(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	id := payload.User.Identifier()
	if id == "" {
		return nil, ErrMalformedToken
	}

	live, err := g.sessions.IsAuthenticated(ctx, id, SessionWeb)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	if !live {
		return nil, ErrSessionRevoked
	}

	return &Identity{
		User:      payload.User,
		ExpiresAt: time.Unix(payload.Exp, 0),
		IssuedAt:  time.Unix(payload.Iat, 0),
	}, nil
}
