package security

import (
	"encoding/base64"
	"errors"
	"testing"
)

func setTestKey(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", base64.StdEncoding.EncodeToString(key))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestKey(t)

	for _, plaintext := range []string{"api-key-123", "", "åäö-ünïcode", "a-very-long-secret-that-spans-more-than-one-block-of-anything"} {
		encrypted, err := EncryptString(plaintext)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if encrypted == plaintext {
			t.Fatal("ciphertext equals plaintext")
		}

		decrypted, err := DecryptString(encrypted)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		if decrypted != plaintext {
			t.Fatalf("round trip mismatch: %q != %q", decrypted, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	setTestKey(t)

	a, err := EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	b, err := EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same input produced identical ciphertext")
	}
}

func TestEncryptWithoutKey(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")
	if _, err := EncryptString("secret"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestLoadKeyRejectsBadKeys(t *testing.T) {
	for _, bad := range []string{"not base64 !!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		t.Setenv("EXCHANGE_CREDENTIALS_KEY", bad)
		if _, err := EncryptString("secret"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", bad, err)
		}
	}
}

func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	setTestKey(t)

	for _, bad := range []string{"", "not base64 !!!", base64.StdEncoding.EncodeToString([]byte("too short"))} {
		if _, err := DecryptString(bad); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload for %q, got %v", bad, err)
		}
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	setTestKey(t)

	encrypted, err := EncryptString("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(encrypted)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := DecryptString(tampered); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload after tampering, got %v", err)
	}
}
