package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mototumen.org/internal/authz"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", "test-issuer")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestGenerateAndValidate(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.GenerateToken("user-42", authz.GlobalCEO, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	p, err := s.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if p.UserID != "user-42" {
		t.Fatalf("unexpected subject: %s", p.UserID)
	}
	if p.Role != authz.GlobalCEO || p.RoleID() != authz.RoleCEO {
		t.Fatalf("unexpected role: %s", p.Role)
	}
	if p.TokenID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("  ", ""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	s := newTestSigner(t)
	if _, err := s.GenerateToken("user-1", "administrator", time.Minute); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	s := newTestSigner(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := s.GenerateToken("user-1", authz.GlobalAdmin, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	s.now = time.Now
	if _, err := s.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsForeignIssuerAndSecret(t *testing.T) {
	s := newTestSigner(t)

	other, err := NewSigner("test-secret", "someone-else")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, err := other.GenerateToken("user-1", authz.GlobalUser, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := s.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	forged, err := NewSigner("wrong-secret", "test-issuer")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, err = forged.GenerateToken("user-1", authz.GlobalCEO, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := s.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature mismatch to fail, got %v", err)
	}
}

func TestParseRejectsUnknownRoleClaim(t *testing.T) {
	s := newTestSigner(t)
	now := time.Now().UTC()
	claims := Claims{
		Role: "administrator",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal in empty context")
	}
	if _, ok := PrincipalFromContext(ContextWithPrincipal(ctx, Principal{Role: authz.GlobalUser})); ok {
		t.Fatal("expected principal without user id to be ignored")
	}

	ctx = ContextWithPrincipal(ctx, Principal{UserID: "user-7", Role: authz.GlobalModerator})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "user-7" {
		t.Fatalf("unexpected principal: %+v, ok=%v", p, ok)
	}
	if p.RoleID() != authz.RoleModerator {
		t.Fatalf("unexpected role: %s", p.RoleID())
	}
}
