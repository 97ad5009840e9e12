package releases

import (
	"context"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

// Repository reads the release catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns every release, newest first.
func (r *Repository) List(ctx context.Context) ([]models.OSRelease, error) {
	var rows []models.OSRelease
	if err := r.db.WithContext(ctx).Order("release_date DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByRoute returns gorm.ErrRecordNotFound for an unknown route.
func (r *Repository) FindByRoute(ctx context.Context, route string) (*models.OSRelease, error) {
	var row models.OSRelease
	if err := r.db.WithContext(ctx).Where("route = ?", route).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByRoutes returns the releases whose route is in routes, newest first.
func (r *Repository) ListByRoutes(ctx context.Context, routes []string) ([]models.OSRelease, error) {
	rows := []models.OSRelease{}
	if len(routes) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("route IN ?", routes).
		Order("release_date DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
