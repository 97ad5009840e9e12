package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tiny11/tiny11-backend/api/responses"
	"github.com/tiny11/tiny11-backend/api/validators"
	"github.com/tiny11/tiny11-backend/internal/checkout"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
	"github.com/tiny11/tiny11-backend/pkg/paypal"
)

const idempotencyKeyHeader = "Idempotency-Key"

// clientPricing is accepted for compatibility with older clients and ignored;
// amounts and descriptions always come from the catalog or tier table.
type clientPricing struct {
	Description json.RawMessage `json:"description,omitempty"`
	Amount      json.RawMessage `json:"amount,omitempty"`
}

type createOrderRequest struct {
	clientPricing
	Email        string `json:"email"`
	Route        string `json:"route"`
	DownloadType string `json:"downloadType"`
}

type createSubscriptionOrderRequest struct {
	clientPricing
	Email            string `json:"email"`
	SubscriptionType string `json:"subscriptionType"`
}

type createRouteSubscriptionOrderRequest struct {
	clientPricing
	Email            string `json:"email"`
	SubscriptionType string `json:"subscriptionType"`
	ReturnRoute      string `json:"returnRoute"`
	Route            string `json:"route"`
}

type captureOrderRequest struct {
	OrderID string `json:"orderId" validate:"required,processorid"`
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	ApprovalURL string `json:"approvalUrl"`
}

type captureResponse struct {
	Success         bool          `json:"success"`
	OrderID         string        `json:"orderId"`
	Status          string        `json:"status"`
	TransactionID   string        `json:"transactionId,omitempty"`
	Amount          *paypal.Money `json:"amount,omitempty"`
	AlreadyCaptured bool          `json:"alreadyCaptured"`
}

func checkoutUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable")
}

func idempotencyKey(r *http.Request) string {
	return validators.SanitizeString(r.Header.Get(idempotencyKeyHeader), 108)
}

// CreateOrder handles POST /api/paypal/create-order for one-time purchases.
func CreateOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, checkoutUnavailable())
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithRoute(logg.WithEmail(ctx, payload.Email), payload.Route)
		}

		order, err := svc.CreateOneTimeOrder(ctx, checkout.OneTimeOrderInput{
			Email:          payload.Email,
			Route:          payload.Route,
			DownloadType:   payload.DownloadType,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "order_id", order.OrderID), "checkout.order_created")
		}
		responses.WriteSuccess(w, orderResponse{OrderID: order.OrderID, ApprovalURL: order.ApprovalURL})
	}
}

// CreateSubscriptionOrder handles POST /api/paypal/create-subscription-order.
func CreateSubscriptionOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, checkoutUnavailable())
			return
		}

		var payload createSubscriptionOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateSubscriptionOrder(r.Context(), checkout.SubscriptionOrderInput{
			Email:          payload.Email,
			Tier:           payload.SubscriptionType,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{OrderID: order.OrderID, ApprovalURL: order.ApprovalURL})
	}
}

// CreateRouteSubscriptionOrder handles POST /api/paypal/create-route-subscription-order.
func CreateRouteSubscriptionOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, checkoutUnavailable())
			return
		}

		var payload createRouteSubscriptionOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		returnRoute := strings.TrimSpace(payload.ReturnRoute)
		if returnRoute == "" {
			returnRoute = strings.TrimSpace(payload.Route)
		}

		order, err := svc.CreateRouteSubscriptionOrder(r.Context(), checkout.RouteSubscriptionOrderInput{
			Email:          payload.Email,
			Tier:           payload.SubscriptionType,
			ReturnRoute:    returnRoute,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{OrderID: order.OrderID, ApprovalURL: order.ApprovalURL})
	}
}

// CaptureOrder handles POST /api/paypal/capture-order.
func CaptureOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, checkoutUnavailable())
			return
		}

		var payload captureOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		capture, err := svc.CaptureOrder(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, captureResponse{
			Success:         true,
			OrderID:         capture.OrderID,
			Status:          capture.Status,
			TransactionID:   capture.TransactionID,
			Amount:          capture.Amount,
			AlreadyCaptured: capture.AlreadyCaptured,
		})
	}
}
