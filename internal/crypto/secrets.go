// Package crypto seals configuration secrets with AES-256-GCM so they can sit in
// environment files as "enc:<base64>" values.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "enc:"

var ErrNoKey = errors.New("sealed secret found but no secrets key is configured")

// Sealer encrypts and decrypts secrets under one 32-byte master key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer takes the master key as 64 hex characters.
func NewSealer(keyHex string) (*Sealer, error) {
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("secrets key must be exactly 32 bytes (64 hex characters)")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets key format (must be hex): %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// IsSealed reports whether value carries the "enc:" prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Seal encrypts plaintext with a fresh random nonce prepended to the ciphertext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a sealed value. Tampering or a wrong key is an error.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", fmt.Errorf("invalid encrypted format (missing %q prefix)", sealedPrefix)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid base64 encoding: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (invalid key or tampered data): %w", err)
	}
	return string(plaintext), nil
}

// Reveal returns plain values unchanged and decrypts sealed ones. A nil Sealer can
// only pass plain values through.
func (s *Sealer) Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", ErrNoKey
	}
	return s.Open(value)
}

// GenerateKey returns a new 32-byte key in hex.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
