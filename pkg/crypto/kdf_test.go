package crypto

import (
	"bytes"
	"testing"
)

func cheapParams() Argon2Parameters {
	return Argon2Parameters{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32}
}

func TestDeriveKeyArgon2idDeterministic(t *testing.T) {
	params := cheapParams()
	secret := []byte("field-encryption-secret")
	salt := bytes.Repeat([]byte{0xA5}, 16)

	key1, err := DeriveKeyArgon2id(secret, salt, params)
	if err != nil {
		t.Fatalf("derive key (first): %v", err)
	}
	key2, err := DeriveKeyArgon2id(secret, salt, params)
	if err != nil {
		t.Fatalf("derive key (second): %v", err)
	}

	if !bytes.Equal(key1, key2) {
		t.Fatalf("expected deterministic key derivation; keys differ")
	}
	if len(key1) != int(params.KeyLength) {
		t.Fatalf("expected key length %d, got %d", params.KeyLength, len(key1))
	}

	other, err := DeriveKeyArgon2id(secret, bytes.Repeat([]byte{0x01}, 16), params)
	if err != nil {
		t.Fatalf("derive key (other salt): %v", err)
	}
	if bytes.Equal(key1, other) {
		t.Fatal("expected different keys for different salts")
	}
}

func TestDeriveKeyArgon2idValidatesInput(t *testing.T) {
	params := cheapParams()

	if _, err := DeriveKeyArgon2id(nil, bytes.Repeat([]byte{0x01}, 16), params); err == nil {
		t.Fatal("expected error when secret is empty")
	}

	if _, err := DeriveKeyArgon2id([]byte("secret"), []byte("short"), params); err == nil {
		t.Fatal("expected error when salt is too short")
	}

	badParams := params
	badParams.KeyLength = 20
	if _, err := DeriveKeyArgon2id([]byte("secret"), bytes.Repeat([]byte{0x02}, 16), badParams); err == nil {
		t.Fatal("expected error for invalid key length")
	}
}

func TestArgon2ParametersValidate(t *testing.T) {
	cases := []struct {
		name   string
		params Argon2Parameters
		valid  bool
	}{
		{"default", DefaultArgon2Params(), true},
		{"zero time", Argon2Parameters{Time: 0, Memory: 64 * 1024, Threads: 4, KeyLength: 32}, false},
		{"zero threads", Argon2Parameters{Time: 2, Memory: 64 * 1024, Threads: 0, KeyLength: 32}, false},
		{"low memory", Argon2Parameters{Time: 2, Memory: 16, Threads: 4, KeyLength: 32}, false},
		{"invalid key length", Argon2Parameters{Time: 2, Memory: 64 * 1024, Threads: 4, KeyLength: 48}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected params to be valid: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected validation error for params")
			}
		})
	}
}

func TestExpandKeySeparatesPurposes(t *testing.T) {
	master := bytes.Repeat([]byte{0x42}, 32)

	enc, err := ExpandKey(master, "encryption", 32)
	if err != nil {
		t.Fatalf("expand encryption: %v", err)
	}
	idx, err := ExpandKey(master, "blind-index", 32)
	if err != nil {
		t.Fatalf("expand index: %v", err)
	}

	if bytes.Equal(enc, idx) {
		t.Fatal("expected purpose-bound subkeys to differ")
	}
	if _, err := ExpandKey(nil, "x", 32); err == nil {
		t.Fatal("expected error for empty master")
	}
}
