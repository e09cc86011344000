package models

import "time"

// PendingRegistration holds a child registration awaiting guardian consent.
// ChildEmail, ParentEmail and Consent.IPAddress are ciphertext at rest.
type PendingRegistration struct {
	BaseModel `bson:",inline"`

	ChildEmail      string        `gorm:"not null" json:"child_email" bson:"child_email"`
	ChildEmailHash  string        `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"child_email_hash"`
	ChildUsername   string        `gorm:"uniqueIndex;size:32;not null" json:"child_username" bson:"child_username"`
	ParentEmail     string        `gorm:"not null" json:"parent_email" bson:"parent_email"`
	ParentEmailHash string        `gorm:"index;size:64;not null" json:"-" bson:"parent_email_hash"`
	PasswordHash    string        `gorm:"not null" json:"-" bson:"password_hash"`
	Consent         ConsentRecord `gorm:"embedded;embeddedPrefix:consent_" json:"consent" bson:"consent"`
	TokenHash       string        `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"token_hash"`
	ExpiresAt       time.Time     `gorm:"index;not null" json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the record is no longer actionable at now.
func (p *PendingRegistration) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
