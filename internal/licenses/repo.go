package licenses

import (
	"context"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

// Repository reads issued license grants from premiumusers.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a license grant repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByKey looks up a grant by its formatted key.
func (r *Repository) FindByKey(ctx context.Context, licenseKey string) (*models.LicenseGrant, error) {
	var grant models.LicenseGrant
	if err := r.db.WithContext(ctx).Where("license_key = ?", licenseKey).Take(&grant).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}
