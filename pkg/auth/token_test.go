package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tiny11/tiny11-backend/pkg/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Secret: strings.Repeat("s", 32),
		Issuer: "tiny11-web",
	}
}

func TestMintAndParseSessionToken(t *testing.T) {
	cfg := testSessionConfig()
	now := time.Now().UTC()

	token, err := MintSessionToken(cfg, now, "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}

	claims, err := ParseSessionToken(cfg, token)
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now().Add(-2*time.Hour), "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}
	if _, err := ParseSessionToken(cfg, token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now(), "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}
	other := cfg
	other.Secret = strings.Repeat("x", 32)
	if _, err := ParseSessionToken(other, token); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestParseSessionTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now(), "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseSessionToken(other, token); !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected issuer error, got %v", err)
	}
}

func TestParseSessionTokenRequiresEmail(t *testing.T) {
	cfg := testSessionConfig()
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(cfg, signed); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestMintSessionTokenRequiresSecret(t *testing.T) {
	if _, err := MintSessionToken(config.SessionConfig{}, time.Now(), "user@example.com", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}
