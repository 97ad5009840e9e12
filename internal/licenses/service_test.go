package licenses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tiny11/tiny11-backend/internal/identities"
	"github.com/tiny11/tiny11-backend/internal/repo/repotest"
	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

const (
	rawKey       = "C9325E8A 9AA2-4D7D9D98B69425FFDF1A"
	formattedKey = "c9325e8a-9aa2-4d7d-9d98-b69425ffdf1a"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubGrants struct {
	grants map[string]models.LicenseGrant
	err    error
}

func (s *stubGrants) FindByKey(ctx context.Context, key string) (*models.LicenseGrant, error) {
	if s.err != nil {
		return nil, s.err
	}
	grant, ok := s.grants[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &grant, nil
}

type stubIdentities struct {
	byEmail   map[string]*models.Identity
	upsertErr error
	findErr   error
	upserts   int
}

func newStubIdentities() *stubIdentities {
	return &stubIdentities{byEmail: map[string]*models.Identity{}}
}

func (s *stubIdentities) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	identity, ok := s.byEmail[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return identity, nil
}

func (s *stubIdentities) FindByLicenseKey(ctx context.Context, key string) (*models.Identity, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, identity := range s.byEmail {
		if identity.LicenseKey != nil && *identity.LicenseKey == key {
			return identity, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubIdentities) Upsert(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	s.upserts++
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	copied := *identity
	s.byEmail[identity.Email] = &copied
	return &copied, nil
}

func (s *stubIdentities) BindLicense(ctx context.Context, email, key string, expiry time.Time) error {
	identity, ok := s.byEmail[email]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	identity.LicenseKey = &key
	identity.ExpiryDate = &expiry
	return nil
}

func newTestService(t *testing.T, ids identityStore, grants grantStore) *service {
	t.Helper()
	svc, err := NewService(ids, grants, "support@tiny11.ch", nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return impl
}

func activeGrants() *stubGrants {
	return &stubGrants{grants: map[string]models.LicenseGrant{
		formattedKey: {LicenseKey: formattedKey, ExpiryDate: fixedNow.AddDate(1, 0, 0)},
	}}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	if _, err := NewService(nil, &stubGrants{}, "support@tiny11.ch", nil); err == nil {
		t.Fatal("expected error for missing identity repo")
	}
	if _, err := NewService(newStubIdentities(), nil, "support@tiny11.ch", nil); err == nil {
		t.Fatal("expected error for missing grant repo")
	}
	if _, err := NewService(newStubIdentities(), &stubGrants{}, " ", nil); err == nil {
		t.Fatal("expected error for missing support email")
	}
}

func TestValidateLicenseBindsFormattedKey(t *testing.T) {
	ids := newStubIdentities()
	svc := newTestService(t, ids, activeGrants())

	res, err := svc.ValidateLicense(context.Background(), "user@example.com", rawKey)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid || res.ExpiryDate == nil || !res.ExpiryDate.Equal(fixedNow.AddDate(1, 0, 0)) {
		t.Fatalf("unexpected result %+v", res)
	}
	stored := ids.byEmail["user@example.com"]
	if stored == nil || stored.LicenseKey == nil || *stored.LicenseKey != formattedKey {
		t.Fatalf("expected formatted key stored, got %+v", stored)
	}
}

func TestValidateLicenseRejections(t *testing.T) {
	expiredGrants := &stubGrants{grants: map[string]models.LicenseGrant{
		formattedKey: {LicenseKey: formattedKey, ExpiryDate: fixedNow},
	}}

	cases := []struct {
		name    string
		grants  *stubGrants
		key     string
		message string
	}{
		{name: "bad length", grants: activeGrants(), key: "abc-123", message: msgInvalidKey},
		{name: "unknown grant", grants: &stubGrants{grants: map[string]models.LicenseGrant{}}, key: rawKey, message: msgInvalidKey},
		{name: "expired at now", grants: expiredGrants, key: rawKey, message: msgExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ids := newStubIdentities()
			svc := newTestService(t, ids, tc.grants)
			res, err := svc.ValidateLicense(context.Background(), "user@example.com", tc.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Valid || res.Message != tc.message {
				t.Fatalf("expected rejection %q, got %+v", tc.message, res)
			}
			if ids.upserts != 0 {
				t.Fatalf("rejection must not write, got %d upserts", ids.upserts)
			}
		})
	}
}

func TestValidateLicenseKeyBoundToAnotherAccount(t *testing.T) {
	ids := newStubIdentities()
	key := formattedKey
	ids.byEmail["owner@example.com"] = &models.Identity{Email: "owner@example.com", LicenseKey: &key}
	svc := newTestService(t, ids, activeGrants())

	res, err := svc.ValidateLicense(context.Background(), "thief@example.com", rawKey)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || !strings.Contains(res.Message, "already been activated") || !strings.Contains(res.Message, "support@tiny11.ch") {
		t.Fatalf("expected already activated rejection, got %+v", res)
	}
	if *ids.byEmail["owner@example.com"].LicenseKey != formattedKey {
		t.Fatal("original binding must be untouched")
	}
	if _, ok := ids.byEmail["thief@example.com"]; ok {
		t.Fatal("no identity should be written for the rejected email")
	}
}

func TestValidateLicenseSameAccountIsIdempotent(t *testing.T) {
	ids := newStubIdentities()
	key := formattedKey
	ids.byEmail["owner@example.com"] = &models.Identity{Email: "owner@example.com", LicenseKey: &key}
	svc := newTestService(t, ids, activeGrants())

	res, err := svc.ValidateLicense(context.Background(), "owner@example.com", formattedKey)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected re-validation to succeed, got %+v", res)
	}
	if ids.upserts != 0 {
		t.Fatalf("re-validation should not write, got %d upserts", ids.upserts)
	}
}

func TestValidateLicenseRequiresInputs(t *testing.T) {
	svc := newTestService(t, newStubIdentities(), activeGrants())
	if _, err := svc.ValidateLicense(context.Background(), "", rawKey); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing email, got %v", err)
	}
	if _, err := svc.ValidateLicense(context.Background(), "user@example.com", "  "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing key, got %v", err)
	}
}

func TestValidateLicenseDependencyFailure(t *testing.T) {
	svc := newTestService(t, newStubIdentities(), &stubGrants{err: errors.New("db down")})
	if _, err := svc.ValidateLicense(context.Background(), "user@example.com", rawKey); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestUpdateLicenseKey(t *testing.T) {
	t.Run("account missing", func(t *testing.T) {
		svc := newTestService(t, newStubIdentities(), activeGrants())
		_, err := svc.UpdateLicenseKey(context.Background(), "ghost@example.com", rawKey)
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("key owned elsewhere", func(t *testing.T) {
		ids := newStubIdentities()
		key := formattedKey
		ids.byEmail["owner@example.com"] = &models.Identity{Email: "owner@example.com", LicenseKey: &key}
		ids.byEmail["other@example.com"] = &models.Identity{Email: "other@example.com"}
		svc := newTestService(t, ids, activeGrants())
		_, err := svc.UpdateLicenseKey(context.Background(), "other@example.com", rawKey)
		if !pkgerrors.IsCode(err, pkgerrors.CodeLicense) {
			t.Fatalf("expected license rejection, got %v", err)
		}
		if typed := pkgerrors.As(err); typed.Message() != msgKeyInUse {
			t.Fatalf("unexpected message %q", typed.Message())
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		svc := newTestService(t, newStubIdentities(), activeGrants())
		_, err := svc.UpdateLicenseKey(context.Background(), "user@example.com", "nope")
		if !pkgerrors.IsCode(err, pkgerrors.CodeLicense) {
			t.Fatalf("expected license rejection, got %v", err)
		}
	})

	t.Run("binds key", func(t *testing.T) {
		ids := newStubIdentities()
		ids.byEmail["user@example.com"] = &models.Identity{Email: "user@example.com"}
		svc := newTestService(t, ids, activeGrants())
		identity, err := svc.UpdateLicenseKey(context.Background(), "user@example.com", rawKey)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if identity.LicenseKey == nil || *identity.LicenseKey != formattedKey {
			t.Fatalf("expected key bound, got %+v", identity)
		}
	})
}

func TestCheckUserAndPlan(t *testing.T) {
	ids := newStubIdentities()
	expiry := fixedNow.AddDate(0, 6, 0)
	ids.byEmail["user@example.com"] = &models.Identity{Email: "user@example.com", ExpiryDate: &expiry}
	svc := newTestService(t, ids, activeGrants())

	res, err := svc.CheckUser(context.Background(), "user@example.com")
	if err != nil || !res.Exists {
		t.Fatalf("expected user to exist, got %+v err=%v", res, err)
	}
	res, err = svc.CheckUser(context.Background(), "nobody@example.com")
	if err != nil || res.Exists || res.User != nil {
		t.Fatalf("expected missing user, got %+v err=%v", res, err)
	}

	plan, err := svc.MyPlan(context.Background(), "user@example.com")
	if err != nil || plan.ExpiryDate == nil || !plan.ExpiryDate.Equal(expiry) || plan.LicenseKey != nil {
		t.Fatalf("unexpected plan %+v err=%v", plan, err)
	}
	empty, err := svc.MyPlan(context.Background(), "nobody@example.com")
	if err != nil || empty.ExpiryDate != nil || empty.LicenseKey != nil {
		t.Fatalf("expected empty plan, got %+v err=%v", empty, err)
	}
}

func TestSkipLicenseClearsBinding(t *testing.T) {
	ids := newStubIdentities()
	svc := newTestService(t, ids, activeGrants())
	identity, err := svc.SkipLicense(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if identity.LicenseKey != nil || identity.ExpiryDate != nil {
		t.Fatalf("expected null license and expiry, got %+v", identity)
	}
}

func TestValidateLicenseAgainstSQLite(t *testing.T) {
	db := repotest.OpenSQLite(t)
	ctx := context.Background()
	if err := db.Create(&models.LicenseGrant{LicenseKey: formattedKey, ExpiryDate: fixedNow.AddDate(1, 0, 0)}).Error; err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	svc := newTestService(t, identities.NewRepository(db), NewRepository(db))

	first, err := svc.ValidateLicense(ctx, "owner@example.com", rawKey)
	if err != nil || !first.Valid {
		t.Fatalf("expected first binding to succeed, got %+v err=%v", first, err)
	}
	second, err := svc.ValidateLicense(ctx, "other@example.com", rawKey)
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if second.Valid {
		t.Fatal("key must not transfer to another email")
	}

	var count int64
	db.Model(&models.Identity{}).Where("license_key = ?", formattedKey).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one binding, got %d", count)
	}
}
