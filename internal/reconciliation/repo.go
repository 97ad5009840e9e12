package reconciliation

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/internal/entitlements"
	"github.com/tiny11/tiny11-backend/internal/identities"
	"github.com/tiny11/tiny11-backend/internal/repo"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

// TransactionRepository persists write-once payment markers.
type TransactionRepository struct {
	base repo.Base
}

// NewTransactionRepository constructs a transaction repository tied to the provided GORM DB.
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{base: r.base.WithTx(tx)}
}

// Exists reports whether a marker for id was already recorded.
func (r *TransactionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.base.DB(ctx).Model(&models.PaymentTransaction{}).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert records the marker. A second insert for the same id fails with a
// unique violation.
func (r *TransactionRepository) Insert(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.base.DB(ctx).Create(txn).Error
}

type ledger interface {
	InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	GrantPurchase(ctx context.Context, email, route string) error
	FindIdentity(ctx context.Context, email string) (*models.Identity, error)
	SetExpiry(ctx context.Context, email string, expiry time.Time) error
}

type ledgerFactory func(tx *gorm.DB) ledger

type gormLedger struct {
	transactions *TransactionRepository
	purchases    *entitlements.Repository
	identities   *identities.Repository
}

func defaultLedger(tx *gorm.DB) ledger {
	return &gormLedger{
		transactions: NewTransactionRepository(tx),
		purchases:    entitlements.NewRepository(tx),
		identities:   identities.NewRepository(tx),
	}
}

func (l *gormLedger) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return l.transactions.Insert(ctx, txn)
}

func (l *gormLedger) GrantPurchase(ctx context.Context, email, route string) error {
	return l.purchases.Grant(ctx, email, route)
}

func (l *gormLedger) FindIdentity(ctx context.Context, email string) (*models.Identity, error) {
	return l.identities.FindByEmail(ctx, email)
}

func (l *gormLedger) SetExpiry(ctx context.Context, email string, expiry time.Time) error {
	return l.identities.UpsertExpiry(ctx, email, expiry)
}
