package whatsapp

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidState = errors.New("invalid oauth state")

// OAuthState is carried through the Microsoft redirect in the state parameter.
type OAuthState struct {
	Token  string `json:"token"`
	Source string `json:"source"`
}

func EncodeState(token string) (string, error) {
	raw, err := json.Marshal(OAuthState{Token: token, Source: "whatsapp"})
	if err != nil {
		return "", fmt.Errorf("encode oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeState(state string) (*OAuthState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return nil, ErrInvalidState
	}
	var s OAuthState
	if err := json.Unmarshal(raw, &s); err != nil || s.Token == "" || s.Source != "whatsapp" {
		return nil, ErrInvalidState
	}
	return &s, nil
}
