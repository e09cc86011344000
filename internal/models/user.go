package models

// User is a permanent account created once a pending record is confirmed or approved.
// Email, ParentEmail and Consent.IPAddress are ciphertext at rest.
type User struct {
	BaseModel `bson:",inline"`

	Username     string `gorm:"uniqueIndex;size:32;not null" json:"username" bson:"username"`
	Email        string `gorm:"not null" json:"email" bson:"email"`
	EmailHash    string `gorm:"uniqueIndex;size:64;not null" json:"-" bson:"email_hash"`
	PasswordHash string `gorm:"not null" json:"-" bson:"password_hash"`

	IsChild         bool   `gorm:"default:false" json:"is_child" bson:"is_child"`
	ParentEmail     string `json:"parent_email,omitempty" bson:"parent_email,omitempty"`
	ParentEmailHash string `gorm:"index;size:64" json:"-" bson:"parent_email_hash,omitempty"`

	ConsentedBy string        `gorm:"size:16;not null" json:"consented_by" bson:"consented_by"`
	Consent     ConsentRecord `gorm:"embedded;embeddedPrefix:consent_" json:"consent" bson:"consent"`
}
