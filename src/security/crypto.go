package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrNoKey            = errors.New("EXCHANGE_CREDENTIALS_KEY not set")
	ErrInvalidKey       = errors.New("credentials key must be 32 bytes, base64 encoded")
	ErrMalformedPayload = errors.New("malformed encrypted payload")
)

func loadKey() (*[32]byte, error) {
	cfg := GetConfig()
	if cfg.ExchangeCRKey == "" {
		return nil, ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(cfg.ExchangeCRKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptString seals a plaintext credential with the configured key.
// The 24-byte nonce is prepended to the ciphertext before base64.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a payload produced by EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrMalformedPayload
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, key)
	if !ok {
		return "", ErrMalformedPayload
	}
	return string(plaintext), nil
}
