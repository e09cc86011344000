package models

import "time"

// PendingConfirmation holds a self registration awaiting email-ownership confirmation.
// Email and Consent.IPAddress are ciphertext at rest.
type PendingConfirmation struct {
	BaseModel `bson:",inline"`

	Email        string        `gorm:"not null" json:"email" bson:"email"`
	EmailHash    string        `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"email_hash"`
	Username     string        `gorm:"uniqueIndex;size:32;not null" json:"username" bson:"username"`
	PasswordHash string        `gorm:"not null" json:"-" bson:"password_hash"`
	Consent      ConsentRecord `gorm:"embedded;embeddedPrefix:consent_" json:"consent" bson:"consent"`
	TokenHash    string        `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"token_hash"`
	ExpiresAt    time.Time     `gorm:"index;not null" json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the record is no longer confirmable at now.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
