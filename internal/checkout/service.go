package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tiny11/tiny11-backend/internal/entitlements"
	"github.com/tiny11/tiny11-backend/internal/releases"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/paypal"
)

const (
	paymentSuccessPath           = "/payment-success"
	subscriptionSuccessPath      = "/subscription-success"
	routeSubscriptionSuccessPath = "/route-subscription-success"
	subscriptionCancelledPath    = "/subscription-cancelled"

	downloadTypeCreatorName = "creator"
)

type orderProcessor interface {
	CreateOrder(ctx context.Context, req paypal.OrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (*paypal.Capture, error)
}

type releaseFinder interface {
	FindByRoute(ctx context.Context, route string) (*models.OSRelease, error)
}

type tokenEncrypter interface {
	Encrypt(email string) (string, error)
}

// Service opens processor orders whose amounts are computed server-side.
type Service interface {
	CreateOneTimeOrder(ctx context.Context, input OneTimeOrderInput) (*OrderResult, error)
	CreateSubscriptionOrder(ctx context.Context, input SubscriptionOrderInput) (*OrderResult, error)
	CreateRouteSubscriptionOrder(ctx context.Context, input RouteSubscriptionOrderInput) (*OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
}

// OneTimeOrderInput buys permanent access to a single release.
type OneTimeOrderInput struct {
	Email          string
	Route          string
	DownloadType   string
	IdempotencyKey string
}

// SubscriptionOrderInput buys a subscription tier.
type SubscriptionOrderInput struct {
	Email          string
	Tier           string
	IdempotencyKey string
}

// RouteSubscriptionOrderInput buys a tier from a release page and returns there.
type RouteSubscriptionOrderInput struct {
	Email          string
	Tier           string
	ReturnRoute    string
	IdempotencyKey string
}

// OrderResult is what the buyer needs to approve the order.
type OrderResult struct {
	OrderID     string
	ApprovalURL string
}

type service struct {
	processor orderProcessor
	releases  releaseFinder
	tokens    tokenEncrypter
	baseURL   string
	now       func() time.Time
}

// NewService builds the order creation service.
func NewService(processor orderProcessor, catalog releaseFinder, tokens tokenEncrypter, siteBaseURL string) (Service, error) {
	if processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("release catalog required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("email token cipher required")
	}
	base := strings.TrimRight(strings.TrimSpace(siteBaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("site base url required")
	}
	return &service{
		processor: processor,
		releases:  catalog,
		tokens:    tokens,
		baseURL:   base,
		now:       time.Now,
	}, nil
}

func (s *service) CreateOneTimeOrder(ctx context.Context, input OneTimeOrderInput) (*OrderResult, error) {
	email, err := requireEmail(input.Email)
	if err != nil {
		return nil, err
	}
	route := strings.TrimSpace(input.Route)
	if route == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Route is required")
	}

	release, err := s.releases.FindByRoute(ctx, route)
	if err != nil {
		return nil, err
	}
	token, err := s.encrypt(email)
	if err != nil {
		return nil, err
	}

	downloadType := downloadTypeCode(input.DownloadType)
	return s.create(ctx, paypal.OrderRequest{
		Amount:      release.Price,
		Description: fmt.Sprintf("Lifetime Access to %s only", release.Name),
		CustomID:    s.customID(downloadTypeLabel(downloadType)),
		ReturnURL: s.siteURL(paymentSuccessPath, url.Values{
			"route":        {route},
			"downloadtype": {downloadType},
			"id":           {token},
		}),
		CancelURL: s.siteURL("/", nil),
		RequestID: input.IdempotencyKey,
	})
}

func (s *service) CreateSubscriptionOrder(ctx context.Context, input SubscriptionOrderInput) (*OrderResult, error) {
	email, err := requireEmail(input.Email)
	if err != nil {
		return nil, err
	}
	tier, req, err := s.tierOrder(input.Tier)
	if err != nil {
		return nil, err
	}
	token, err := s.encrypt(email)
	if err != nil {
		return nil, err
	}

	req.CustomID = s.customID("subscription_" + tier)
	req.ReturnURL = s.siteURL(subscriptionSuccessPath, url.Values{
		"subscriptionType": {tier},
		"id":               {token},
	})
	req.CancelURL = s.siteURL("/", nil)
	req.RequestID = input.IdempotencyKey
	return s.create(ctx, req)
}

func (s *service) CreateRouteSubscriptionOrder(ctx context.Context, input RouteSubscriptionOrderInput) (*OrderResult, error) {
	email, err := requireEmail(input.Email)
	if err != nil {
		return nil, err
	}
	returnRoute := strings.TrimSpace(input.ReturnRoute)
	if returnRoute == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Route is required")
	}
	tier, req, err := s.tierOrder(input.Tier)
	if err != nil {
		return nil, err
	}
	token, err := s.encrypt(email)
	if err != nil {
		return nil, err
	}

	req.CustomID = s.customID("route_subscription_" + tier)
	req.ReturnURL = s.siteURL(routeSubscriptionSuccessPath, url.Values{
		"subscriptionType": {tier},
		"id":               {token},
		"returnRoute":      {returnRoute},
	})
	req.CancelURL = s.siteURL(subscriptionCancelledPath, nil)
	req.RequestID = input.IdempotencyKey
	return s.create(ctx, req)
}

func (s *service) CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Order ID is required")
	}
	return s.processor.CaptureOrder(ctx, orderID, paypal.CaptureRequestID(orderID))
}

func (s *service) tierOrder(rawTier string) (string, paypal.OrderRequest, error) {
	tier, err := entitlements.NormalizeTier(rawTier)
	if err != nil {
		return "", paypal.OrderRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid subscription type")
	}
	price, err := entitlements.TierPrice(tier)
	if err != nil {
		return "", paypal.OrderRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid subscription type")
	}
	name, _ := entitlements.TierName(tier)
	return tier, paypal.OrderRequest{Amount: price, Description: name}, nil
}

func (s *service) create(ctx context.Context, req paypal.OrderRequest) (*OrderResult, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		req.RequestID = uuid.NewString()
	}
	order, err := s.processor.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	return &OrderResult{OrderID: order.ID, ApprovalURL: order.ApprovalURL}, nil
}

func (s *service) encrypt(email string) (string, error) {
	token, err := s.tokens.Encrypt(email)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Email encryption failed")
	}
	return token, nil
}

func (s *service) customID(kind string) string {
	return fmt.Sprintf("%s_%d", kind, s.now().UnixMilli())
}

func (s *service) siteURL(path string, query url.Values) string {
	if len(query) == 0 {
		return s.baseURL + path
	}
	return s.baseURL + path + "?" + query.Encode()
}

func downloadTypeCode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case downloadTypeCreatorName, releases.DownloadTypeCreator:
		return releases.DownloadTypeCreator
	default:
		return releases.DownloadTypeInstaller
	}
}

func downloadTypeLabel(code string) string {
	if code == releases.DownloadTypeCreator {
		return downloadTypeCreatorName
	}
	return "installer"
}

func requireEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}
	return email, nil
}
