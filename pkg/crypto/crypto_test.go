package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPasswordWithCost("secret", 4)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if strings.Contains(hash, "secret") {
		t.Fatal("expected hash to not contain plaintext")
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("parent@example.com")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	again, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if encoded == again {
		t.Fatal("expected random nonces to produce distinct ciphertexts")
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	encoded, err := Encrypt([]byte("data"), bytes.Repeat([]byte{0x1}, 32))
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	if _, err := Decrypt(encoded, bytes.Repeat([]byte{0x2}, 32)); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(48)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) != 64 {
		t.Fatalf("expected 64 base64url characters, got %d", len(token))
	}

	other, err := GenerateToken(48)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected tokens to differ")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected identical digests")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected different digests")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected hex sha256 length")
	}
}

func TestKeyedDigestDependsOnKey(t *testing.T) {
	a := KeyedDigest([]byte("key-a"), "a@b.com")
	b := KeyedDigest([]byte("key-b"), "a@b.com")
	if a == b {
		t.Fatal("expected digests under different keys to differ")
	}
	if a != KeyedDigest([]byte("key-a"), "a@b.com") {
		t.Fatal("expected digest to be deterministic")
	}
}
