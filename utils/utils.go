package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	tokenKeySize   = 32
	tokenNonceSize = 24
)

var ErrTokenCiphertext = errors.New("stored token cannot be decrypted")

// TokenCipher encrypts OAuth tokens before they reach the database.
type TokenCipher struct {
	key [tokenKeySize]byte
}

// NewTokenCipher takes a base64 encoded 32 byte key (TOKEN_ENCRYPTION_KEY).
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("token encryption key is not valid base64: %w", err)
	}
	if len(raw) != tokenKeySize {
		return nil, fmt.Errorf("token encryption key must be %d bytes, got %d", tokenKeySize, len(raw))
	}
	c := &TokenCipher{}
	copy(c.key[:], raw)
	return c, nil
}

// Seal returns base64(nonce || box).
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	var nonce [tokenNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (c *TokenCipher) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenCiphertext, err)
	}
	if len(raw) < tokenNonceSize+secretbox.Overhead {
		return "", ErrTokenCiphertext
	}
	var nonce [tokenNonceSize]byte
	copy(nonce[:], raw[:tokenNonceSize])
	plain, ok := secretbox.Open(nil, raw[tokenNonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrTokenCiphertext
	}
	return string(plain), nil
}
