package models

import "time"

// IdentityReservation claims a username and an email blind index for one
// owner across both pending variants and accounts. OwnerID is the pending
// record id until the record is promoted, then the account id. ExpiresAt is
// nil once the reservation belongs to an account.
type IdentityReservation struct {
	BaseModel `bson:",inline"`

	OwnerID   string     `gorm:"index;size:36;not null" json:"owner_id" bson:"owner_id"`
	Username  string     `gorm:"uniqueIndex;size:32;not null" json:"username" bson:"username"`
	EmailHash string     `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"email_hash"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}
