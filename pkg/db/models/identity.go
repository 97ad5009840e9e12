package models

import "time"

// Identity is the per-email license and subscription record.
type Identity struct {
	Email      string     `gorm:"column:email;primaryKey"`
	LicenseKey *string    `gorm:"column:license_key;uniqueIndex:oauth_license_key_key"`
	ExpiryDate *time.Time `gorm:"column:expirydate"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Identity) TableName() string {
	return "oauth"
}

// HasActiveSubscription reports whether the expiry is strictly after now.
func (i *Identity) HasActiveSubscription(now time.Time) bool {
	return i != nil && i.ExpiryDate != nil && i.ExpiryDate.After(now)
}
