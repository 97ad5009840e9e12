package controllers

import (
	"net/http"
	"time"

	"github.com/tiny11/tiny11-backend/api/responses"
	"github.com/tiny11/tiny11-backend/api/validators"
	"github.com/tiny11/tiny11-backend/internal/reconciliation"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
)

type paymentSuccessRequest struct {
	Route        string `json:"route"`
	DownloadType string `json:"downloadType"`
	EncryptedID  string `json:"encryptedId"`
	Token        string `json:"token"`
	OrderID      string `json:"orderId"`
}

type subscriptionSuccessRequest struct {
	SubscriptionType string `json:"subscriptionType"`
	EncryptedID      string `json:"encryptedId"`
	Token            string `json:"token"`
	OrderID          string `json:"orderId"`
	ReturnRoute      string `json:"returnRoute,omitempty"`
}

type reconciliationResponse struct {
	Success          bool       `json:"success"`
	Status           string     `json:"status"`
	Message          string     `json:"message"`
	Email            string     `json:"email,omitempty"`
	Route            string     `json:"route,omitempty"`
	DownloadType     string     `json:"downloadType,omitempty"`
	DownloadURL      string     `json:"downloadUrl,omitempty"`
	SubscriptionType string     `json:"subscriptionType,omitempty"`
	ExpiryDate       *time.Time `json:"expiryDate,omitempty"`
}

func toReconciliationResponse(result *reconciliation.Result) reconciliationResponse {
	return reconciliationResponse{
		Success:          result.Status == reconciliation.StatusSuccess,
		Status:           result.Status,
		Message:          result.Message,
		Email:            result.Email,
		Route:            result.Route,
		DownloadType:     result.DownloadType,
		DownloadURL:      result.DownloadURL,
		SubscriptionType: result.Tier,
		ExpiryDate:       result.ExpiryDate,
	}
}

func reconciliationUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable")
}

// PaymentSuccess handles POST /api/payment-success. A replayed callback
// answers 200 with status "duplicate".
func PaymentSuccess(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reconciliationUnavailable())
			return
		}

		var payload paymentSuccessRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "order_id", payload.OrderID)
		}

		result, err := svc.PaymentSuccess(ctx, reconciliation.PaymentSuccessInput{
			Route:        payload.Route,
			DownloadType: payload.DownloadType,
			EncryptedID:  payload.EncryptedID,
			Token:        payload.Token,
			OrderID:      payload.OrderID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReconciliationResponse(result))
	}
}

// SubscriptionSuccess handles POST /api/subscription-success for both the
// plain and the route subscription return pages.
func SubscriptionSuccess(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reconciliationUnavailable())
			return
		}

		var payload subscriptionSuccessRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "order_id", payload.OrderID)
		}

		result, err := svc.SubscriptionSuccess(ctx, reconciliation.SubscriptionSuccessInput{
			Tier:        payload.SubscriptionType,
			EncryptedID: payload.EncryptedID,
			Token:       payload.Token,
			OrderID:     payload.OrderID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := toReconciliationResponse(result)
		resp.Route = validators.SanitizeString(payload.ReturnRoute, 128)
		responses.WriteSuccess(w, resp)
	}
}
