package releases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
)

// Download types carried on the payment return URL.
const (
	DownloadTypeCreator   = "1"
	DownloadTypeInstaller = "2"
)

const cacheNamespace = "releases"

type catalogStore interface {
	List(ctx context.Context) ([]models.OSRelease, error)
	FindByRoute(ctx context.Context, route string) (*models.OSRelease, error)
}

type jsonCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// Service serves the release catalog through a short-lived read cache.
type Service interface {
	List(ctx context.Context) ([]models.OSRelease, error)
	FindByRoute(ctx context.Context, route string) (*models.OSRelease, error)
	CreatorLink(ctx context.Context, route string) (string, error)
	DownloadLink(ctx context.Context, route, downloadType string) (string, error)
}

type service struct {
	store catalogStore
	cache jsonCache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewService builds the catalog service. A nil cache or non-positive ttl
// disables caching.
func NewService(store catalogStore, cache jsonCache, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("release repository required")
	}
	return &service{store: store, cache: cache, ttl: ttl, logg: logg}, nil
}

func (s *service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *service) List(ctx context.Context) ([]models.OSRelease, error) {
	var key string
	if s.cacheEnabled() {
		key = s.cache.CacheKey(cacheNamespace, "all")
		var cached []models.OSRelease
		if hit := s.readCache(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to fetch OS releases")
	}
	if rows == nil {
		rows = []models.OSRelease{}
	}
	if s.cacheEnabled() {
		s.writeCache(ctx, key, rows)
	}
	return rows, nil
}

func (s *service) FindByRoute(ctx context.Context, route string) (*models.OSRelease, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Route is required")
	}

	var key string
	if s.cacheEnabled() {
		key = s.cache.CacheKey(cacheNamespace, "route", route)
		var cached models.OSRelease
		if hit := s.readCache(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	row, err := s.store.FindByRoute(ctx, route)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "OS release not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch OS release")
	}
	if s.cacheEnabled() {
		s.writeCache(ctx, key, row)
	}
	return row, nil
}

func (s *service) CreatorLink(ctx context.Context, route string) (string, error) {
	return s.DownloadLink(ctx, route, DownloadTypeCreator)
}

// DownloadLink resolves the link for a download type: creator builds use the
// creator link, everything else the installer download link.
func (s *service) DownloadLink(ctx context.Context, route, downloadType string) (string, error) {
	release, err := s.FindByRoute(ctx, route)
	if err != nil {
		return "", err
	}
	link := release.DownloadLink
	if strings.TrimSpace(downloadType) == DownloadTypeCreator {
		link = release.CreatorLink
	}
	if link == nil || strings.TrimSpace(*link) == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "download link not available")
	}
	return *link, nil
}

func (s *service) readCache(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("release cache read failed: %v", err))
		}
		return false
	}
	return hit
}

func (s *service) writeCache(ctx context.Context, key string, value any) {
	if err := s.cache.SetJSON(ctx, key, value, s.ttl); err != nil && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("release cache write failed: %v", err))
	}
}
