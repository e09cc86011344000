package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.Len(t, cfg.Security.FieldEncryptionKey, fieldEncryptionBytes*2)
	require.True(t, generated["auth.jwt.secret"])
	require.True(t, generated["security.field_encryption_key"])

	_, err = cfg.Security.NewFieldCipher()
	require.NoError(t, err)
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	cfg.Security.FieldEncryptionKey = strings.Repeat("b", 32)

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}

func TestGenerateHexKey(t *testing.T) {
	key, err := generateHexKey(4)
	require.NoError(t, err)
	require.Len(t, key, 8)

	_, err = generateHexKey(0)
	require.Error(t, err)
}
