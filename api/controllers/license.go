package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/tiny11/tiny11-backend/api/responses"
	"github.com/tiny11/tiny11-backend/api/validators"
	"github.com/tiny11/tiny11-backend/internal/licenses"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
)

const (
	actionCheckUser       = "checkUser"
	actionValidateLicense = "validateLicense"
	actionSkipLicense     = "skipLicense"
)

var errInvalidAction = pkgerrors.New(pkgerrors.CodeValidation, "Invalid action")

type licenseRequest struct {
	Action     string `json:"action" validate:"required"`
	Email      string `json:"email"`
	LicenseKey string `json:"licenseKey"`
}

type updateLicenseKeyRequest struct {
	Email      string `json:"email"`
	LicenseKey string `json:"licenseKey"`
}

type checkUserResponse struct {
	Exists bool         `json:"exists"`
	User   *identityDTO `json:"user"`
}

type validateLicenseResponse struct {
	Valid      bool         `json:"valid"`
	Message    string       `json:"message,omitempty"`
	ExpiryDate *time.Time   `json:"expiryDate,omitempty"`
	User       *identityDTO `json:"user,omitempty"`
}

type identityResponse struct {
	Success bool         `json:"success"`
	User    *identityDTO `json:"user"`
}

// LicenseQuery handles GET /api/license?action=checkUser&email=...
func LicenseQuery(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		email, err := validators.RequireQuery(r, "email", "Email is required")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if validators.QueryString(r, "action") != actionCheckUser {
			responses.WriteError(r.Context(), logg, w, errInvalidAction)
			return
		}

		result, err := svc.CheckUser(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkUserResponse{Exists: result.Exists, User: toIdentityDTO(result.User)})
	}
}

// LicenseAction handles POST /api/license for validateLicense and skipLicense.
// Business-rule rejections are reported in the body with valid=false.
func LicenseAction(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload licenseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithEmail(ctx, payload.Email)
		}

		switch strings.TrimSpace(payload.Action) {
		case actionValidateLicense:
			result, err := svc.ValidateLicense(ctx, payload.Email, payload.LicenseKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, validateLicenseResponse{
				Valid:      result.Valid,
				Message:    result.Message,
				ExpiryDate: result.ExpiryDate,
				User:       toIdentityDTO(result.User),
			})
		case actionSkipLicense:
			identity, err := svc.SkipLicense(ctx, payload.Email)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, identityResponse{Success: true, User: toIdentityDTO(identity)})
		default:
			responses.WriteError(ctx, logg, w, errInvalidAction)
		}
	}
}

// UpdateLicenseKey handles POST /api/update-license-key.
func UpdateLicenseKey(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload updateLicenseKeyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, err := svc.UpdateLicenseKey(r.Context(), payload.Email, payload.LicenseKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, identityResponse{Success: true, User: toIdentityDTO(identity)})
	}
}

// MyPlan handles GET /api/my-plan?email=...
func MyPlan(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		email, err := validators.RequireQuery(r, "email", "Email is required")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.MyPlan(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"expirydate":  plan.ExpiryDate,
			"license_key": plan.LicenseKey,
		})
	}
}
