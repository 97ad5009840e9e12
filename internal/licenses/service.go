package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	pkgdb "github.com/tiny11/tiny11-backend/pkg/db"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/licensekey"
	"github.com/tiny11/tiny11-backend/pkg/metrics"
)

const (
	msgInvalidKey     = "Invalid license key"
	msgExpired        = "License expired"
	msgKeyInUse       = "This license key is already associated with another account."
	msgAccountMissing = "Account not found."

	outcomeValid     = "valid"
	outcomeInvalid   = "invalid"
	outcomeExpired   = "expired"
	outcomeActivated = "already_activated"
)

type identityStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByLicenseKey(ctx context.Context, licenseKey string) (*models.Identity, error)
	Upsert(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	BindLicense(ctx context.Context, email, licenseKey string, expiry time.Time) error
}

type grantStore interface {
	FindByKey(ctx context.Context, licenseKey string) (*models.LicenseGrant, error)
}

// Service binds license keys to identities and reports plan state.
type Service interface {
	CheckUser(ctx context.Context, email string) (*CheckUserResult, error)
	ValidateLicense(ctx context.Context, email, rawKey string) (*ValidationResult, error)
	SkipLicense(ctx context.Context, email string) (*models.Identity, error)
	UpdateLicenseKey(ctx context.Context, email, rawKey string) (*models.Identity, error)
	MyPlan(ctx context.Context, email string) (*Plan, error)
}

// CheckUserResult reports whether an identity row exists.
type CheckUserResult struct {
	Exists bool
	User   *models.Identity
}

// ValidationResult is the outcome of a validate-license attempt. Business-rule
// rejections are reported with Valid=false and a user-facing Message.
type ValidationResult struct {
	Valid      bool
	Message    string
	ExpiryDate *time.Time
	User       *models.Identity
}

// Plan is the license and expiry currently recorded for an email.
type Plan struct {
	ExpiryDate *time.Time
	LicenseKey *string
}

type service struct {
	identities   identityStore
	grants       grantStore
	supportEmail string
	metrics      *metrics.PaymentMetrics
	now          func() time.Time
}

// NewService builds a license service backed by the identity and grant stores.
func NewService(identities identityStore, grants grantStore, supportEmail string, m *metrics.PaymentMetrics) (Service, error) {
	if identities == nil {
		return nil, fmt.Errorf("identity repository required")
	}
	if grants == nil {
		return nil, fmt.Errorf("license grant repository required")
	}
	if strings.TrimSpace(supportEmail) == "" {
		return nil, fmt.Errorf("support email required")
	}
	return &service{
		identities:   identities,
		grants:       grants,
		supportEmail: strings.TrimSpace(supportEmail),
		metrics:      m,
		now:          time.Now,
	}, nil
}

func (s *service) alreadyActivatedMessage() string {
	return fmt.Sprintf("This license key has already been activated on another account. If this is your key and you're unable to access it, or if you believe it was wrongfully activated, please contact %s for assistance.", s.supportEmail)
}

func (s *service) CheckUser(ctx context.Context, email string) (*CheckUserResult, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CheckUserResult{Exists: false}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup identity")
	}
	return &CheckUserResult{Exists: true, User: identity}, nil
}

func (s *service) ValidateLicense(ctx context.Context, email, rawKey string) (*ValidationResult, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "License key is required")
	}

	formatted, err := licensekey.Format(rawKey)
	if err != nil {
		return s.reject(outcomeInvalid, msgInvalidKey), nil
	}

	grant, err := s.grants.FindByKey(ctx, formatted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.reject(outcomeInvalid, msgInvalidKey), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license grant")
	}
	if !grant.ExpiryDate.After(s.now()) {
		return s.reject(outcomeExpired, msgExpired), nil
	}

	bound, err := s.identities.FindByLicenseKey(ctx, formatted)
	switch {
	case err == nil && bound.Email != email:
		return s.reject(outcomeActivated, s.alreadyActivatedMessage()), nil
	case err == nil:
		s.metrics.IncLicenseValidation(outcomeValid)
		expiry := grant.ExpiryDate
		return &ValidationResult{Valid: true, ExpiryDate: &expiry, User: bound}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license binding")
	}

	expiry := grant.ExpiryDate
	identity, err := s.identities.Upsert(ctx, &models.Identity{
		Email:      email,
		LicenseKey: &formatted,
		ExpiryDate: &expiry,
	})
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return s.reject(outcomeActivated, s.alreadyActivatedMessage()), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind license")
	}

	s.metrics.IncLicenseValidation(outcomeValid)
	return &ValidationResult{Valid: true, ExpiryDate: &expiry, User: identity}, nil
}

func (s *service) reject(outcome, message string) *ValidationResult {
	s.metrics.IncLicenseValidation(outcome)
	return &ValidationResult{Valid: false, Message: message}
}

func (s *service) SkipLicense(ctx context.Context, email string) (*models.Identity, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.Upsert(ctx, &models.Identity{Email: email})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record identity")
	}
	return identity, nil
}

func (s *service) UpdateLicenseKey(ctx context.Context, email, rawKey string) (*models.Identity, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email and license key are required.")
	}

	formatted, err := licensekey.Format(rawKey)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeLicense, msgInvalidKey)
	}
	grant, err := s.grants.FindByKey(ctx, formatted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeLicense, msgInvalidKey)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license grant")
	}
	if !grant.ExpiryDate.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeLicense, msgExpired)
	}

	bound, err := s.identities.FindByLicenseKey(ctx, formatted)
	if err == nil && bound.Email != email {
		return nil, pkgerrors.New(pkgerrors.CodeLicense, msgKeyInUse)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license binding")
	}

	if err := s.identities.BindLicense(ctx, email, formatted, grant.ExpiryDate); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, msgAccountMissing)
		case pkgdb.IsUniqueViolation(err, ""):
			return nil, pkgerrors.New(pkgerrors.CodeLicense, msgKeyInUse)
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update license key")
		}
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload identity")
	}
	return identity, nil
}

func (s *service) MyPlan(ctx context.Context, email string) (*Plan, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Plan{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch plan")
	}
	return &Plan{ExpiryDate: identity.ExpiryDate, LicenseKey: identity.LicenseKey}, nil
}

func requireEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}
	return email, nil
}
