package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	id := base.ID
	base.EnsureID()
	require.Equal(t, id, base.ID, "existing identifiers are preserved")
}

func TestConsentGranted(t *testing.T) {
	require.True(t, ConsentRecord{AgreedToTerms: true, AgeConfirmed: true}.Granted())
	require.False(t, ConsentRecord{AgreedToTerms: true}.Granted())
	require.False(t, ConsentRecord{AgeConfirmed: true}.Granted())
}

func TestConsentGuardianGranted(t *testing.T) {
	approved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, ConsentRecord{AgreedToTerms: true, GuardianApprovedAt: &approved}.GuardianGranted())
	require.False(t, ConsentRecord{AgreedToTerms: true}.GuardianGranted())
	require.False(t, ConsentRecord{AgreedToTerms: true, GuardianApprovedAt: &approved}.Granted(),
		"guardian approval does not fake the self age confirmation")
}

func TestExpiryHasNoGracePeriod(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pc := &PendingConfirmation{ExpiresAt: expires}
	require.False(t, pc.Expired(expires.Add(-time.Nanosecond)))
	require.True(t, pc.Expired(expires))

	pr := &PendingRegistration{ExpiresAt: expires}
	require.True(t, pr.Expired(expires.Add(time.Second)))

	tok := &PasswordResetToken{ExpiresAt: expires}
	require.True(t, tok.Expired(expires))
}
