package entitlements

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tiny11/tiny11-backend/internal/repo"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

// Repository persists one-time purchases.
type Repository struct {
	base repo.Base
}

// NewRepository constructs a purchase repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// Find returns gorm.ErrRecordNotFound when email has not bought route.
func (r *Repository) Find(ctx context.Context, email, route string) (*models.StandalonePurchase, error) {
	var purchase models.StandalonePurchase
	err := r.base.DB(ctx).Where("email = ? AND route = ?", email, route).Take(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListRoutes returns the distinct routes email has bought.
func (r *Repository) ListRoutes(ctx context.Context, email string) ([]string, error) {
	var routes []string
	err := r.base.DB(ctx).Model(&models.StandalonePurchase{}).
		Where("email = ?", email).
		Distinct("route").
		Pluck("route", &routes).Error
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// Grant records a one-time purchase. An existing row for the same pair is kept.
func (r *Repository) Grant(ctx context.Context, email, route string) error {
	return r.base.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "route"}},
		DoNothing: true,
	}).Create(&models.StandalonePurchase{Email: email, Route: route}).Error
}
