package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	TokenTypeAccess = "access_token"
	DefaultTokenTTL = 24 * time.Hour
)

var (
	keyAlgorithms     = []jose.KeyAlgorithm{jose.A256KW}
	contentEncryption = []jose.ContentEncryption{jose.A256GCM}
)

// TokenPayload is the plaintext inside a bearer token.
type TokenPayload struct {
	User UserClaims `json:"user"`
	Exp  int64      `json:"exp"`
	Iat  int64      `json:"iat"`
	Type string     `json:"type"`
}

// TokenCodec issues and verifies encrypted bearer tokens (JWE compact, A256KW + A256GCM).
// The payload carries PII, so it is encrypted rather than only signed.
type TokenCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenCodec builds a codec from the server secret. A 64-char hex string or a
// 32-byte string is used directly; anything else is stretched with HKDF-SHA256.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &TokenCodec{key: key, ttl: DefaultTokenTTL, now: time.Now}, nil
}

func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if len(secret) == 64 {
		if b, err := hex.DecodeString(secret); err == nil {
			return b, nil
		}
	}
	if len(secret) == 32 {
		return []byte(secret), nil
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("gateway bearer token A256KW"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return key, nil
}

// CreateToken encrypts the claims with a 24h expiry.
func (c *TokenCodec) CreateToken(user UserClaims) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	payload, err := json.Marshal(TokenPayload{
		User: user,
		Exp:  expiresAt.Unix(),
		Iat:  now.Unix(),
		Type: TokenTypeAccess,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode token payload: %w", err)
	}

	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.A256KW, Key: c.key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create encrypter: %w", err)
	}

	obj, err := enc.Encrypt(payload)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encrypt token: %w", err)
	}

	token, err := obj.CompactSerialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyToken returns the payload of a valid, unexpired token. Every failure
// (garbage, wrong key, tampering, wrong type, expiry) yields the same false.
func (c *TokenCodec) VerifyToken(token string) (*TokenPayload, bool) {
	if token == "" {
		return nil, false
	}

	obj, err := jose.ParseEncrypted(token, keyAlgorithms, contentEncryption)
	if err != nil {
		return nil, false
	}

	plaintext, err := obj.Decrypt(c.key)
	if err != nil {
		return nil, false
	}

	var payload TokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, false
	}

	if payload.Type != TokenTypeAccess {
		return nil, false
	}
	if c.now().Unix() >= payload.Exp {
		return nil, false
	}

	return &payload, true
}
