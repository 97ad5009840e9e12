package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tiny11/tiny11-backend/api/responses"
	"github.com/tiny11/tiny11-backend/api/validators"
	"github.com/tiny11/tiny11-backend/internal/releases"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
)

func releasesUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "release catalog unavailable")
}

// ListReleases handles GET /api/os-releases.
func ListReleases(svc releases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, releasesUnavailable())
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"releases": toReleaseDTOs(list)})
	}
}

// GetRelease handles GET /api/os-releases/{route}.
func GetRelease(svc releases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, releasesUnavailable())
			return
		}

		route := validators.SanitizeString(chi.URLParam(r, "route"), 128)
		release, err := svc.FindByRoute(r.Context(), route)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"release": toReleaseDTO(*release)})
	}
}

// DownloadCreator handles GET /api/download-creator?route.
func DownloadCreator(svc releases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, releasesUnavailable())
			return
		}

		route, err := validators.RequireQuery(r, "route", "Route is required")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.CreatorLink(r.Context(), route)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"downloadUrl": link})
	}
}
