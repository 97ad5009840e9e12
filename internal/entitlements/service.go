package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

// Decision sources.
const (
	SourcePurchase     = "purchase"
	SourceSubscription = "subscription"
)

type purchaseStore interface {
	Find(ctx context.Context, email, route string) (*models.StandalonePurchase, error)
	ListRoutes(ctx context.Context, email string) ([]string, error)
}

type identityReader interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
}

type releaseLister interface {
	ListByRoutes(ctx context.Context, routes []string) ([]models.OSRelease, error)
}

// Service answers read-only access questions for an email.
type Service interface {
	Decide(ctx context.Context, email, route string) (*Decision, error)
	CheckPurchase(ctx context.Context, email, route string) (*PurchaseStatus, error)
	SubscriptionStatus(ctx context.Context, email string) (*SubscriptionStatus, error)
	MyPurchases(ctx context.Context, email string) ([]models.OSRelease, error)
}

// Decision is the access verdict for one route.
type Decision struct {
	Granted    bool
	Source     string
	ExpiryDate *time.Time
}

// PurchaseStatus reports a one-time purchase independent of subscriptions.
type PurchaseStatus struct {
	HasPurchased bool
	Purchase     *models.StandalonePurchase
}

// SubscriptionStatus reports the subscription independent of purchases.
type SubscriptionStatus struct {
	HasSubscription bool
	ExpiryDate      *time.Time
}

type service struct {
	purchases  purchaseStore
	identities identityReader
	releases   releaseLister
	now        func() time.Time
}

// NewService builds the entitlement ledger.
func NewService(purchases purchaseStore, identities identityReader, releases releaseLister) (Service, error) {
	if purchases == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity repository required")
	}
	if releases == nil {
		return nil, fmt.Errorf("release repository required")
	}
	return &service{
		purchases:  purchases,
		identities: identities,
		releases:   releases,
		now:        time.Now,
	}, nil
}

func (s *service) Decide(ctx context.Context, email, route string) (*Decision, error) {
	email, route, err := requireEmailRoute(email, route)
	if err != nil {
		return nil, err
	}

	purchase, err := s.CheckPurchase(ctx, email, route)
	if err != nil {
		return nil, err
	}
	if purchase.HasPurchased {
		return &Decision{Granted: true, Source: SourcePurchase}, nil
	}

	sub, err := s.SubscriptionStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	if sub.HasSubscription {
		return &Decision{Granted: true, Source: SourceSubscription, ExpiryDate: sub.ExpiryDate}, nil
	}
	return &Decision{Granted: false, ExpiryDate: sub.ExpiryDate}, nil
}

func (s *service) CheckPurchase(ctx context.Context, email, route string) (*PurchaseStatus, error) {
	email, route, err := requireEmailRoute(email, route)
	if err != nil {
		return nil, err
	}
	purchase, err := s.purchases.Find(ctx, email, route)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PurchaseStatus{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check standalone purchase")
	}
	return &PurchaseStatus{HasPurchased: true, Purchase: purchase}, nil
}

func (s *service) SubscriptionStatus(ctx context.Context, email string) (*SubscriptionStatus, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}
	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SubscriptionStatus{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription status")
	}
	return &SubscriptionStatus{
		HasSubscription: identity.HasActiveSubscription(s.now()),
		ExpiryDate:      identity.ExpiryDate,
	}, nil
}

func (s *service) MyPurchases(ctx context.Context, email string) ([]models.OSRelease, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}
	routes, err := s.purchases.ListRoutes(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch purchases")
	}
	if len(routes) == 0 {
		return []models.OSRelease{}, nil
	}
	releases, err := s.releases.ListByRoutes(ctx, routes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch release details")
	}
	return releases, nil
}

func requireEmailRoute(email, route string) (string, string, error) {
	email = strings.TrimSpace(email)
	route = strings.TrimSpace(route)
	if email == "" || route == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "Email and route are required")
	}
	return email, route, nil
}
