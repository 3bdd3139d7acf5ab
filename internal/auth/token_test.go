package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	now := time.Now()
	token, expiresAt, err := issuer.Mint("sid-1", User{ID: "1", Email: "test@example.com"}, now)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.ID != "sid-1" || claims.Subject != "1" || claims.Email != "test@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if err := issuer.Verify(token); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
}

func TestTokenIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret", time.Hour)
	other, _ := NewTokenIssuer("other-secret", time.Hour)

	token, _, err := other.Mint("sid-1", User{ID: "1"}, time.Now())
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	expired, _, err := issuer.Mint("sid-2", User{ID: "1"}, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if err := issuer.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	if err := issuer.Verify("mock-token-1700000000000"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for opaque token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if err := issuer.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unsigned token, got %v", err)
	}
}

func TestNewTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer("", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewTokenIssuer("s", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
