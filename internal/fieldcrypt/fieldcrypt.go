// Package fieldcrypt encrypts individual PII columns before they reach the
// persistence layer and produces keyed blind indexes for equality lookups on
// those columns.
package fieldcrypt

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/get2knowme/pkg/crypto"
)

const (
	defaultSaltLength = 16

	encryptionInfo = "get2knowme/field-encryption/v1"
	indexInfo      = "get2knowme/blind-index/v1"
)

// Cipher holds the derived encryption and blind-index keys.
type Cipher struct {
	encKey   []byte
	indexKey []byte
	params   crypto.Argon2Parameters
}

type cipherConfig struct {
	params crypto.Argon2Parameters
	salt   []byte
}

// Option configures the field cipher.
type Option func(*cipherConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) Option {
	cp := make([]byte, len(salt))
	copy(cp, salt)
	return func(cfg *cipherConfig) {
		cfg.salt = cp
	}
}

// WithArgon2Parameters overrides the Argon2 parameters used during key derivation.
func WithArgon2Parameters(params crypto.Argon2Parameters) Option {
	return func(cfg *cipherConfig) {
		cfg.params = params
	}
}

// New derives the field keys from the configured secret.
func New(secret []byte, opts ...Option) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, errors.New("fieldcrypt: secret is required")
	}

	cfg := cipherConfig{
		params: crypto.DefaultArgon2Params(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		cfg.salt = deriveSalt(secret)
	} else if len(cfg.salt) < defaultSaltLength {
		return nil, fmt.Errorf("fieldcrypt: salt must be at least %d bytes (got %d)", defaultSaltLength, len(cfg.salt))
	}

	master, err := crypto.DeriveKeyArgon2id(secret, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive key: %w", err)
	}

	encKey, err := crypto.ExpandKey(master, encryptionInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	indexKey, err := crypto.ExpandKey(master, indexInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}

	return &Cipher{encKey: encKey, indexKey: indexKey, params: cfg.params}, nil
}

// Encrypt seals plaintext. Empty values stay empty so optional columns remain blank.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	out, err := crypto.Encrypt([]byte(plaintext), c.encKey)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: encrypt: %w", err)
	}
	return out, nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	out, err := crypto.Decrypt(ciphertext, c.encKey)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: decrypt: %w", err)
	}
	return string(out), nil
}

// BlindIndex returns a deterministic keyed digest of the normalised value.
func (c *Cipher) BlindIndex(value string) string {
	return crypto.KeyedDigest(c.indexKey, Normalize(value))
}

// Parameters returns the Argon2 parameters used during derivation.
func (c *Cipher) Parameters() crypto.Argon2Parameters {
	return c.params
}

// Normalize lowercases and trims an identifier such as an email address.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func deriveSalt(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:defaultSaltLength]
}
