package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

type licenseBody struct {
	Action     string `json:"action" validate:"required,oneof=validateLicense skipLicense"`
	Email      string `json:"email" validate:"required,email"`
	LicenseKey string `json:"licenseKey"`
}

func TestDecodeJSONBodyValidatesWithJSONNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"validateLicense","email":"nope"}`))
	var body licenseBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["email"] != "must be a valid email" {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"skipLicense","email":"a@b.com","price":"0.01"}`))
	var body licenseBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"skipLicense","email":"a@b.com"}`))
	var body licenseBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Email != "a@b.com" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRequireQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?email=%20user@example.com%20", nil)
	got, err := RequireQuery(req, "email", "Email is required")
	if err != nil || got != "user@example.com" {
		t.Fatalf("unexpected result %q %v", got, err)
	}

	_, err = RequireQuery(req, "route", "Route is required")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation || typed.Message() != "Route is required" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"raw-token":   "raw-token",
	}
	for in, want := range cases {
		got, err := BearerToken(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q %v", in, got, err)
		}
	}
	if _, err := BearerToken("Bearer "); err != ErrMissingBearer {
		t.Fatalf("expected missing bearer error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  tiny11-25h2  ", 5); got != "tiny1" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestDecodeJSONBodyRejectsOversizedPayload(t *testing.T) {
	big := `{"action":"skipLicense","email":"a@b.com","licenseKey":"` + strings.Repeat("k", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var body licenseBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Message() != "request body too large" {
		t.Fatalf("expected size rejection, got %v", err)
	}
}

func TestProcessorIDValidation(t *testing.T) {
	type captureBody struct {
		OrderID string `json:"orderId" validate:"required,processorid"`
	}
	for raw, ok := range map[string]bool{
		`{"orderId":"5O190127TN364715T"}`: true,
		`{"orderId":"../../v2/payments"}`: false,
		`{"orderId":""}`:                  false,
	} {
		var body captureBody
		err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw)), &body)
		if (err == nil) != ok {
			t.Fatalf("%s: expected ok=%v, got %v", raw, ok, err)
		}
	}
}
