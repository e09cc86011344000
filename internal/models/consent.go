package models

import "time"

// Who granted consent for an account.
const (
	ConsentedBySelf     = "self"
	ConsentedByGuardian = "guardian"
)

// ConsentRecord is the audit trail of the consent act itself.
type ConsentRecord struct {
	AgreedToTerms    bool      `gorm:"not null;default:false" json:"agreed_to_terms" bson:"agreed_to_terms"`
	AgeConfirmed     bool      `gorm:"not null;default:false" json:"age_confirmed" bson:"age_confirmed"`
	ConsentTimestamp time.Time `json:"consent_timestamp" bson:"consent_timestamp"`
	// IPAddress is stored encrypted.
	IPAddress string `json:"-" bson:"ip_address"`
	UserAgent string `gorm:"size:512" json:"user_agent" bson:"user_agent"`
	// GuardianApprovedAt is set when a guardian approved the account. It
	// stands in for AgeConfirmed on child accounts.
	GuardianApprovedAt *time.Time `json:"guardian_approved_at,omitempty" bson:"guardian_approved_at,omitempty"`
}

// Granted reports whether both mandatory consent flags are set.
func (c ConsentRecord) Granted() bool {
	return c.AgreedToTerms && c.AgeConfirmed
}

// GuardianGranted reports whether terms were accepted and a guardian approved.
func (c ConsentRecord) GuardianGranted() bool {
	return c.AgreedToTerms && c.GuardianApprovedAt != nil
}
