package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestFieldCipher_RoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testKey, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	if !c.Enabled() {
		t.Fatal("expected cipher to be enabled")
	}

	sealed, err := c.Seal("Paciente refiere ansiedad")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "ansiedad") {
		t.Errorf("unexpected sealed value %q", sealed)
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "Paciente refiere ansiedad" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestFieldCipher_UniqueNonces(t *testing.T) {
	c, _ := NewFieldCipher(testKey, zerolog.Nop())
	a, _ := c.Seal("same")
	b, _ := c.Seal("same")
	if a == b {
		t.Error("expected distinct ciphertexts for the same plaintext")
	}
}

func TestFieldCipher_Disabled(t *testing.T) {
	c, err := NewFieldCipher("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	if c.Enabled() {
		t.Fatal("expected disabled cipher")
	}

	sealed, _ := c.Seal("texto")
	if sealed != "texto" {
		t.Errorf("expected pass-through, got %q", sealed)
	}
	if _, err := c.Open(sealedPrefix + "AAAA"); err == nil {
		t.Error("expected error opening an encrypted value without a key")
	}
}

func TestFieldCipher_OpenPlaintextPassThrough(t *testing.T) {
	c, _ := NewFieldCipher(testKey, zerolog.Nop())
	got, err := c.Open("legacy plaintext")
	if err != nil || got != "legacy plaintext" {
		t.Errorf("expected legacy value unchanged, got %q, %v", got, err)
	}
}

func TestFieldCipher_Tampered(t *testing.T) {
	c, _ := NewFieldCipher(testKey, zerolog.Nop())
	sealed, _ := c.Seal("informe")
	tampered := sealed[:len(sealed)-2] + "AA"
	if _, err := c.Open(tampered); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
	if _, err := c.Open(sealedPrefix + "!!"); !errors.Is(err, ErrCiphertext) {
		t.Errorf("expected ErrCiphertext, got %v", err)
	}
}

func TestNewFieldCipher_InvalidKeys(t *testing.T) {
	for _, key := range []string{"zz", "0011"} {
		if _, err := NewFieldCipher(key, zerolog.Nop()); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}
