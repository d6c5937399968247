package crypto

import (
	"encoding/base64"
	"testing"
)

const testKey = "01234567890123456789012345678901" // 32 chars, a raw 32-byte key

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey[:32]
	ct, err := Encrypt("super-secret-token", key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsEncrypted(ct) {
		t.Fatalf("expected ciphertext to carry the aes-gcm prefix, got %q", ct)
	}

	pt, err := Decrypt(ct, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "super-secret-token" {
		t.Fatalf("got %q, want original plaintext", pt)
	}
}

func TestEncryptEmptyKeyIsNoop(t *testing.T) {
	out, err := Encrypt("plain", "")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if out != "plain" {
		t.Fatalf("got %q, want unchanged plaintext", out)
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	out, err := Decrypt("not-encrypted", testKey[:32])
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if out != "not-encrypted" {
		t.Fatalf("got %q, want value returned unchanged", out)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	ct, err := Encrypt("secret", testKey[:32])
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	otherKey := "98765432109876543210987654321098"
	if _, err := Decrypt(ct, otherKey); err == nil {
		t.Fatal("expected Decrypt with the wrong key to fail")
	}
}

func TestDeriveKeyAcceptsHexBase64AndRaw(t *testing.T) {
	hexKey := "3031323334353637383930313233343536373839303132333435363738393a3b"
	if _, err := DeriveKey(hexKey); err != nil {
		t.Errorf("hex key: %v", err)
	}
	b64Key := base64.StdEncoding.EncodeToString([]byte(testKey[:32]))
	if _, err := DeriveKey(b64Key); err != nil {
		t.Errorf("base64 key: %v", err)
	}
	if _, err := DeriveKey(testKey[:32]); err != nil {
		t.Errorf("raw key: %v", err)
	}
	if _, err := DeriveKey("too-short"); err == nil {
		t.Error("expected an invalid-length key to fail")
	}
}
