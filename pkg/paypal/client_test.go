package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tiny11/tiny11-backend/pkg/config"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

type fakePayPal struct {
	t          *testing.T
	tokenCalls int32
	lastOrder  map[string]any
	lastReqID  string
	capture    func(w http.ResponseWriter, r *http.Request)
}

func (f *fakePayPal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "sandbox-id" || pass != "sandbox-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastReqID = r.Header.Get(requestIDHeader)
		f.lastOrder = map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&f.lastOrder); err != nil {
			f.t.Errorf("decode order body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"rel":"self","href":"https://x/self"},{"rel":"approve","href":"https://paypal.test/approve?token=ORDER-1"}]}`))
	})
	mux.HandleFunc(ordersPath+"/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/capture") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.lastReqID = r.Header.Get(requestIDHeader)
		f.capture(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakePayPal) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(config.PayPalConfig{
		Mode:                config.PayPalModeSandbox,
		SandboxClientID:     "sandbox-id",
		SandboxClientSecret: "sandbox-secret",
		BrandName:           "Tiny 11",
		Currency:            "usd",
	}, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientSelectsHostByMode(t *testing.T) {
	live, err := NewClient(config.PayPalConfig{Mode: "Live", ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("live client: %v", err)
	}
	if live.BaseURL() != liveBaseURL {
		t.Fatalf("expected live host, got %s", live.BaseURL())
	}

	sandbox, err := NewClient(config.PayPalConfig{Mode: "Sandbox", SandboxClientID: "id", SandboxClientSecret: "secret"})
	if err != nil {
		t.Fatalf("sandbox client: %v", err)
	}
	if sandbox.BaseURL() != sandboxBaseURL {
		t.Fatalf("expected sandbox host, got %s", sandbox.BaseURL())
	}

	override, err := NewClient(config.PayPalConfig{Mode: "Sandbox", SandboxClientID: "id", SandboxClientSecret: "secret", BaseURLOverride: "http://localhost:9999/"})
	if err != nil {
		t.Fatalf("override client: %v", err)
	}
	if override.BaseURL() != "http://localhost:9999" {
		t.Fatalf("expected override host, got %s", override.BaseURL())
	}
}

func TestNewClientRequiresCredentialsForMode(t *testing.T) {
	_, err := NewClient(config.PayPalConfig{Mode: "Live", SandboxClientID: "id", SandboxClientSecret: "secret"})
	if err == nil {
		t.Fatal("expected error when live credentials are missing")
	}
}

func TestCreateOrderSendsCapturePayload(t *testing.T) {
	fake := &fakePayPal{t: t}
	client := newTestClient(t, fake)

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount:      decimal.RequireFromString("9.9"),
		Description: "Tiny11 24H2 download",
		CustomID:    "token",
		ReturnURL:   "https://tiny11.ch/payment-success?route=24h2",
		CancelURL:   "https://tiny11.ch/",
		RequestID:   "idem-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "ORDER-1" || order.ApprovalURL != "https://paypal.test/approve?token=ORDER-1" {
		t.Fatalf("unexpected order %+v", order)
	}
	if fake.lastReqID != "idem-1" {
		t.Fatalf("expected request id header, got %q", fake.lastReqID)
	}
	if fake.lastOrder["intent"] != "CAPTURE" {
		t.Fatalf("expected CAPTURE intent, got %v", fake.lastOrder["intent"])
	}
	units := fake.lastOrder["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	if amount["value"] != "9.90" || amount["currency_code"] != "USD" {
		t.Fatalf("unexpected amount %v", amount)
	}
	appCtx := fake.lastOrder["application_context"].(map[string]any)
	if appCtx["brand_name"] != "Tiny 11" || appCtx["user_action"] != "PAY_NOW" || appCtx["landing_page"] != "NO_PREFERENCE" {
		t.Fatalf("unexpected application context %v", appCtx)
	}

	if _, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount: decimal.NewFromInt(1), ReturnURL: "https://r", CancelURL: "https://c",
	}); err != nil {
		t.Fatalf("second create order: %v", err)
	}
	if got := atomic.LoadInt32(&fake.tokenCalls); got != 1 {
		t.Fatalf("expected access token to be reused, token endpoint hit %d times", got)
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	client := newTestClient(t, &fakePayPal{t: t})
	_, err := client.CreateOrder(context.Background(), OrderRequest{Amount: decimal.Zero, ReturnURL: "https://r", CancelURL: "https://c"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCaptureOrderReturnsTransaction(t *testing.T) {
	fake := &fakePayPal{t: t}
	fake.capture = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-9","status":"COMPLETED","amount":{"currency_code":"USD","value":"48.00"}}]}}]}`))
	}
	client := newTestClient(t, fake)

	capture, err := client.CaptureOrder(context.Background(), "ORDER-1", "capture-ORDER-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.TransactionID != "CAP-9" || capture.Status != "COMPLETED" {
		t.Fatalf("unexpected capture %+v", capture)
	}
	if capture.Amount == nil || capture.Amount.Value != "48.00" {
		t.Fatalf("unexpected amount %+v", capture.Amount)
	}
	if fake.lastReqID != "capture-ORDER-1" {
		t.Fatalf("expected request id, got %q", fake.lastReqID)
	}
}

func TestCaptureOrderTreatsAlreadyCapturedAsCaptured(t *testing.T) {
	fake := &fakePayPal{t: t}
	fake.capture = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed","debug_id":"abc","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
	}
	client := newTestClient(t, fake)

	capture, err := client.CaptureOrder(context.Background(), "ORDER-1", "")
	if err != nil {
		t.Fatalf("expected already-captured to succeed, got %v", err)
	}
	if !capture.AlreadyCaptured || capture.OrderID != "ORDER-1" {
		t.Fatalf("unexpected capture %+v", capture)
	}
}

func TestCaptureOrderMapsProcessorFailure(t *testing.T) {
	fake := &fakePayPal{t: t}
	fake.capture = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`))
	}
	client := newTestClient(t, fake)

	_, err := client.CaptureOrder(context.Background(), "ORDER-1", "")
	if !pkgerrors.IsCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.HasIssue("INSTRUMENT_DECLINED") {
		t.Fatalf("expected wrapped api error with issue, got %v", err)
	}
}

func TestCaptureOrderRequiresID(t *testing.T) {
	client := newTestClient(t, &fakePayPal{t: t})
	if _, err := client.CaptureOrder(context.Background(), "  ", ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
