package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune(b)), 32)))
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey('k'))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := s.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "ya29") {
		t.Fatalf("sealed value leaks plaintext: %q", sealed)
	}
	again, err := s.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("seal again: %v", err)
	}
	if again == sealed {
		t.Fatalf("expected random nonce to produce distinct ciphertexts")
	}
	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "ya29.access-token" {
		t.Fatalf("open = %q", plain)
	}
}

func TestSealerRejectsTamperingAndWrongKey(t *testing.T) {
	s, err := NewSealer(testKey('k'))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := s.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	other, err := NewSealer(testKey('z'))
	if err != nil {
		t.Fatalf("new other sealer: %v", err)
	}
	if _, err := other.Open(sealed); !errors.Is(err, ErrInvalidSealed) {
		t.Fatalf("expected ErrInvalidSealed for wrong key, got %v", err)
	}
	if _, err := s.Open(sealedPrefix + "AAAA"); !errors.Is(err, ErrInvalidSealed) {
		t.Fatalf("expected ErrInvalidSealed for short payload, got %v", err)
	}
	passthrough, _ := NewSealer("")
	if _, err := passthrough.Open(sealed); !errors.Is(err, ErrInvalidSealed) {
		t.Fatalf("passthrough sealer must not open sealed values, got %v", err)
	}
}

func TestSealerPassthroughAndKeyValidation(t *testing.T) {
	s, err := NewSealer("")
	if err != nil {
		t.Fatalf("new passthrough sealer: %v", err)
	}
	if s.Enabled() {
		t.Fatalf("empty key should disable sealing")
	}
	v, err := s.Seal("plain")
	if err != nil || v != "plain" {
		t.Fatalf("passthrough seal = %q, %v", v, err)
	}
	if _, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
	if _, err := NewSealer("%%%"); err == nil {
		t.Fatalf("expected bad base64 to be rejected")
	}
}
