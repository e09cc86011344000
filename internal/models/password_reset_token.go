package models

import "time"

// PasswordResetToken is a single-use credential for replacing an account password.
type PasswordResetToken struct {
	BaseModel `bson:",inline"`

	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id" bson:"user_id"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"token_hash"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the token can no longer be redeemed at now.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
