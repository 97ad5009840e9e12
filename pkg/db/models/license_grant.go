package models

import "time"

// LicenseGrant is an out-of-band issued key with its expiry. Read-only here.
type LicenseGrant struct {
	LicenseKey string    `gorm:"column:license_key;primaryKey"`
	ExpiryDate time.Time `gorm:"column:expirydate;not null"`
}

func (LicenseGrant) TableName() string {
	return "premiumusers"
}
