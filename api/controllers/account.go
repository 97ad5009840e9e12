package controllers

import (
	"net/http"

	"github.com/tiny11/tiny11-backend/api/responses"
	"github.com/tiny11/tiny11-backend/api/validators"
	"github.com/tiny11/tiny11-backend/internal/entitlements"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
)

func entitlementsUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable")
}

// CheckStandalonePurchase handles GET /api/check-standalone-purchase?email&route.
func CheckStandalonePurchase(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, entitlementsUnavailable())
			return
		}

		email := validators.QueryString(r, "email")
		route := validators.QueryString(r, "route")

		status, err := svc.CheckPurchase(r.Context(), email, route)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"hasPurchased": status.HasPurchased,
			"purchase":     toPurchaseDTO(status.Purchase),
		})
	}
}

// SubscriptionStatus handles GET /api/subscription-status?email.
func SubscriptionStatus(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, entitlementsUnavailable())
			return
		}

		email, err := validators.RequireQuery(r, "email", "Email is required")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.SubscriptionStatus(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"hasSubscription": status.HasSubscription,
			"expiryDate":      status.ExpiryDate,
		})
	}
}

// MyPurchases handles GET /api/my-purchases?email and includes the download
// links of owned releases.
func MyPurchases(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, entitlementsUnavailable())
			return
		}

		email, err := validators.RequireQuery(r, "email", "Email is required")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		releases, err := svc.MyPurchases(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"releases": toOwnedReleaseDTOs(releases)})
	}
}

// Entitlement handles GET /api/entitlement?email&route.
func Entitlement(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, entitlementsUnavailable())
			return
		}

		decision, err := svc.Decide(r.Context(), validators.QueryString(r, "email"), validators.QueryString(r, "route"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"granted":    decision.Granted,
			"source":     decision.Source,
			"expiryDate": decision.ExpiryDate,
		})
	}
}
