package identities

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tiny11/tiny11-backend/internal/repo"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

// Repository persists identity rows in the oauth table.
type Repository struct {
	base repo.Base
}

// NewRepository constructs an identity repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// FindByEmail returns gorm.ErrRecordNotFound when no identity exists.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var identity models.Identity
	if err := r.base.DB(ctx).Where("email = ?", email).Take(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// FindByLicenseKey returns the identity a formatted key is bound to.
func (r *Repository) FindByLicenseKey(ctx context.Context, licenseKey string) (*models.Identity, error) {
	var identity models.Identity
	if err := r.base.DB(ctx).Where("license_key = ?", licenseKey).Take(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// Upsert inserts the identity or overwrites license_key and expirydate for an
// existing email. A key bound elsewhere surfaces as a unique violation.
func (r *Repository) Upsert(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	err := r.base.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"license_key", "expirydate", "updated_at"}),
	}).Create(identity).Error
	if err != nil {
		return nil, err
	}
	return r.FindByEmail(ctx, identity.Email)
}

// UpsertExpiry sets expirydate for email, creating the identity when absent.
// The license binding of an existing row is left untouched.
func (r *Repository) UpsertExpiry(ctx context.Context, email string, expiry time.Time) error {
	identity := &models.Identity{Email: email, ExpiryDate: &expiry}
	return r.base.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"expirydate", "updated_at"}),
	}).Create(identity).Error
}

// BindLicense updates the key and expiry of an existing identity. It returns
// gorm.ErrRecordNotFound when the email has no row.
func (r *Repository) BindLicense(ctx context.Context, email, licenseKey string, expiry time.Time) error {
	res := r.base.DB(ctx).Model(&models.Identity{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"license_key": licenseKey,
			"expirydate":  expiry,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
