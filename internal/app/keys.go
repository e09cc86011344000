package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
)

const minFieldKeyBytes = 16

// DecodeKey decodes a secret written as hex (the runtime default) or base64,
// falling back to the raw bytes of the string.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a key string, zero when unset.
func KeyByteLength(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := DecodeKey(value)
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}

// NewFieldCipher derives the field encryption and blind-index keys from the configured secrets.
func (c SecurityConfig) NewFieldCipher() (*fieldcrypt.Cipher, error) {
	secret, err := DecodeKey(c.FieldEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("security.field_encryption_key: %w", err)
	}
	if len(secret) < minFieldKeyBytes {
		return nil, fmt.Errorf("security.field_encryption_key must decode to at least %d bytes (got %d)", minFieldKeyBytes, len(secret))
	}

	var opts []fieldcrypt.Option
	if strings.TrimSpace(c.FieldEncryptionSalt) != "" {
		salt, err := DecodeKey(c.FieldEncryptionSalt)
		if err != nil {
			return nil, fmt.Errorf("security.field_encryption_salt: %w", err)
		}
		opts = append(opts, fieldcrypt.WithSalt(salt))
	}

	return fieldcrypt.New(secret, opts...)
}
