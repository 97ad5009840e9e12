package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tiny11/tiny11-backend/pkg/auth"
	"github.com/tiny11/tiny11-backend/pkg/config"
)

func sessionConfig() config.SessionConfig {
	return config.SessionConfig{Secret: "session-secret", Issuer: "tiny11-auth"}
}

func mintToken(t *testing.T, email string) string {
	t.Helper()
	token, err := auth.MintSessionToken(sessionConfig(), time.Now(), email, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestSessionDisabledPassesThrough(t *testing.T) {
	called := false
	handler := Session(config.SessionConfig{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/my-plan?email=a@b.com", nil))
	if !called {
		t.Fatalf("expected handler to run when sessions are disabled")
	}
}

func TestSessionRejectsMissingToken(t *testing.T) {
	handler := Session(sessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/my-plan?email=a@b.com", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestSessionRejectsInvalidToken(t *testing.T) {
	handler := Session(sessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/my-plan?email=a@b.com", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestSessionRejectsEmailMismatch(t *testing.T) {
	handler := Session(sessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/my-plan?email=other@example.com", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user@example.com"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestSessionAcceptsMatchingBodyEmail(t *testing.T) {
	var seen, body string
	handler := Session(sessionConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionEmailFromContext(r.Context())
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	payload := `{"email":"User@Example.com","licenseKey":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/api/update-license-key", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user@example.com"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seen != "user@example.com" {
		t.Fatalf("expected session email in context, got %q", seen)
	}
	if body != payload {
		t.Fatalf("expected body to be preserved, got %q", body)
	}
}
