package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/internal/entitlements"
	pkgdb "github.com/tiny11/tiny11-backend/pkg/db"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
	"github.com/tiny11/tiny11-backend/pkg/metrics"
	"github.com/tiny11/tiny11-backend/pkg/paypal"
)

// Result statuses.
const (
	StatusSuccess   = "success"
	StatusDuplicate = "duplicate"
)

const (
	outcomeEntitled  = "entitled"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"

	msgMissingParams  = "Missing required parameters"
	msgDuplicate      = "Transaction already processed"
	msgCaptureFailed  = "Failed to capture payment"
	msgInvalidToken   = "Invalid transaction ID"
	msgProcessFailed  = "Failed to process transaction"
	msgInvalidTier    = "Invalid subscription type"
	msgPurchaseOK     = "Transaction successful"
	msgSubscriptionOK = "Subscription activated successfully"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transactionChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type inFlightGuard interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type captureProcessor interface {
	CaptureOrder(ctx context.Context, orderID, requestID string) (*paypal.Capture, error)
}

type tokenDecrypter interface {
	Decrypt(token string) (string, error)
}

type downloadLinker interface {
	DownloadLink(ctx context.Context, route, downloadType string) (string, error)
}

// Service turns a processor success redirect into exactly one recorded
// transaction and one entitlement grant.
type Service interface {
	PaymentSuccess(ctx context.Context, input PaymentSuccessInput) (*Result, error)
	SubscriptionSuccess(ctx context.Context, input SubscriptionSuccessInput) (*Result, error)
}

// PaymentSuccessInput is the one-time purchase callback.
type PaymentSuccessInput struct {
	Route        string
	DownloadType string
	EncryptedID  string
	Token        string
	OrderID      string
}

// SubscriptionSuccessInput is the subscription callback.
type SubscriptionSuccessInput struct {
	Tier        string
	EncryptedID string
	Token       string
	OrderID     string
}

// Result describes a completed or duplicate reconciliation.
type Result struct {
	Status       string
	Message      string
	Email        string
	Route        string
	DownloadType string
	DownloadURL  string
	Tier         string
	ExpiryDate   *time.Time
}

// Params wires the reconciliation service.
type Params struct {
	Logger        *logger.Logger
	DB            txRunner
	Transactions  transactionChecker
	Guard         inFlightGuard
	Processor     captureProcessor
	Tokens        tokenDecrypter
	Links         downloadLinker
	Metrics       *metrics.PaymentMetrics
	LedgerFactory ledgerFactory
}

type service struct {
	logg         *logger.Logger
	db           txRunner
	transactions transactionChecker
	guard        inFlightGuard
	processor    captureProcessor
	tokens       tokenDecrypter
	links        downloadLinker
	metrics      *metrics.PaymentMetrics
	ledger       ledgerFactory
	now          func() time.Time
}

type callback struct {
	encryptedID string
	token       string
	orderID     string
}

// NewService validates params and builds the reconciliation service.
func NewService(params Params) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("in-flight guard required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("email token cipher required")
	}
	factory := params.LedgerFactory
	if factory == nil {
		factory = defaultLedger
	}
	return &service{
		logg:         params.Logger,
		db:           params.DB,
		transactions: params.Transactions,
		guard:        params.Guard,
		processor:    params.Processor,
		tokens:       params.Tokens,
		links:        params.Links,
		metrics:      params.Metrics,
		ledger:       factory,
		now:          time.Now,
	}, nil
}

func (s *service) PaymentSuccess(ctx context.Context, input PaymentSuccessInput) (*Result, error) {
	route := strings.TrimSpace(input.Route)
	downloadType := strings.TrimSpace(input.DownloadType)
	cb, ok := newCallback(input.EncryptedID, input.Token, input.OrderID)
	if !ok || route == "" || downloadType == "" {
		s.metrics.IncReconciliation(metrics.FlowStandalone, outcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgMissingParams)
	}
	ctx = s.logg.WithRoute(ctx, route)

	result, err := s.reconcile(ctx, metrics.FlowStandalone, cb, func(ctx context.Context, l ledger, email string) (*Result, error) {
		if err := l.GrantPurchase(ctx, email, route); err != nil {
			return nil, err
		}
		return &Result{
			Status:       StatusSuccess,
			Message:      msgPurchaseOK,
			Email:        email,
			Route:        route,
			DownloadType: downloadType,
		}, nil
	})
	if err != nil || result.Status != StatusSuccess || s.links == nil {
		return result, err
	}

	link, linkErr := s.links.DownloadLink(ctx, route, downloadType)
	if linkErr != nil {
		s.logg.Warn(ctx, fmt.Sprintf("download link unavailable after purchase: %v", linkErr))
		return result, nil
	}
	result.DownloadURL = link
	return result, nil
}

func (s *service) SubscriptionSuccess(ctx context.Context, input SubscriptionSuccessInput) (*Result, error) {
	cb, ok := newCallback(input.EncryptedID, input.Token, input.OrderID)
	if !ok || strings.TrimSpace(input.Tier) == "" {
		s.metrics.IncReconciliation(metrics.FlowSubscription, outcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgMissingParams)
	}
	tier, err := entitlements.NormalizeTier(input.Tier)
	if err != nil {
		s.metrics.IncReconciliation(metrics.FlowSubscription, outcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgInvalidTier)
	}

	return s.reconcile(ctx, metrics.FlowSubscription, cb, func(ctx context.Context, l ledger, email string) (*Result, error) {
		var current *time.Time
		identity, err := l.FindIdentity(ctx, email)
		switch {
		case err == nil:
			current = identity.ExpiryDate
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}

		expiry, err := entitlements.NextExpiry(tier, current, s.now())
		if err != nil {
			return nil, err
		}
		if err := l.SetExpiry(ctx, email, expiry); err != nil {
			return nil, err
		}
		return &Result{
			Status:     StatusSuccess,
			Message:    msgSubscriptionOK,
			Email:      email,
			Tier:       tier,
			ExpiryDate: &expiry,
		}, nil
	})
}

type grantFunc func(ctx context.Context, l ledger, email string) (*Result, error)

func (s *service) reconcile(ctx context.Context, flow string, cb callback, grant grantFunc) (result *Result, err error) {
	defer func() {
		switch {
		case err != nil:
			s.metrics.IncReconciliation(flow, outcomeRejected)
		case result != nil && result.Status == StatusDuplicate:
			s.metrics.IncReconciliation(flow, outcomeDuplicate)
		default:
			s.metrics.IncReconciliation(flow, outcomeEntitled)
		}
	}()

	exists, err := s.transactions.Exists(ctx, cb.encryptedID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, msgProcessFailed)
	}
	if exists {
		return duplicate(), nil
	}

	acquired, err := s.guard.Acquire(ctx, cb.encryptedID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, msgProcessFailed)
	}
	if !acquired {
		s.logg.Info(ctx, "reconciliation already in flight")
		return duplicate(), nil
	}
	release := true
	defer func() {
		if !release {
			return
		}
		if relErr := s.guard.Release(context.WithoutCancel(ctx), cb.encryptedID); relErr != nil {
			s.logg.Warn(ctx, fmt.Sprintf("release in-flight guard: %v", relErr))
		}
	}()

	capture, err := s.processor.CaptureOrder(ctx, cb.orderID, paypal.CaptureRequestID(cb.orderID))
	if err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodePayment, err, msgCaptureFailed)
		if typed := pkgerrors.As(err); typed != nil && typed.Details() != nil {
			wrapped = wrapped.WithDetails(typed.Details())
		}
		return nil, wrapped
	}

	email, err := s.tokens.Decrypt(cb.encryptedID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgInvalidToken)
	}
	ctx = s.logg.WithEmail(ctx, email)

	transactionID := cb.token
	if capture != nil && capture.TransactionID != "" {
		transactionID = capture.TransactionID
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		l := s.ledger(tx)
		if err := l.InsertTransaction(ctx, &models.PaymentTransaction{
			ID:            cb.encryptedID,
			TransactionID: transactionID,
			Email:         email,
		}); err != nil {
			return err
		}
		granted, err := grant(ctx, l, email)
		if err != nil {
			return err
		}
		result = granted
		return nil
	})
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return duplicate(), nil
		}
		s.logg.Error(ctx, "reconciliation rolled back", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, msgProcessFailed)
	}

	release = false
	s.logg.Info(ctx, fmt.Sprintf("%s payment reconciled", flow))
	return result, nil
}

func newCallback(encryptedID, token, orderID string) (callback, bool) {
	cb := callback{
		encryptedID: strings.TrimSpace(encryptedID),
		token:       strings.TrimSpace(token),
		orderID:     strings.TrimSpace(orderID),
	}
	if cb.encryptedID == "" || cb.token == "" {
		return cb, false
	}
	if cb.orderID == "" {
		cb.orderID = cb.token
	}
	return cb, true
}

func duplicate() *Result {
	return &Result{Status: StatusDuplicate, Message: msgDuplicate}
}
