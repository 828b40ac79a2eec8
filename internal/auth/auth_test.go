package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testAdmin = Principal{ID: "01HADMIN", Email: "admin@fidget.test", Role: RoleWebsiteAdmin, Active: true}

func TestIssueAndVerifyAdminToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tk := NewTokenizer("test-secret", WithTokenClock(fixedClock(now)))

	token, expiresAt, err := tk.Issue(testAdmin, TokenAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(DefaultTokenTTL)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	claims, err := tk.Verify("Bearer "+token, TokenAdmin)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != testAdmin.ID || claims.Email != testAdmin.Email || claims.Role != RoleWebsiteAdmin {
		t.Fatalf("claims not preserved: %+v", claims)
	}
	if claims.Type != TokenAdmin || claims.ID == "" || claims.Issuer != DefaultIssuer {
		t.Fatalf("registered claims missing: %+v", claims)
	}
	if _, err := tk.Verify("bearer "+token, TokenAdmin); err != nil {
		t.Fatalf("scheme should be case-insensitive: %v", err)
	}
}

func TestTokenTypeIsolation(t *testing.T) {
	tk := NewTokenizer("test-secret")

	customer, _, err := tk.Issue(Principal{ID: "cust-1", Email: "c@fidget.test"}, TokenCustomer)
	if err != nil {
		t.Fatalf("Issue customer: %v", err)
	}
	claims, err := tk.Verify("Bearer "+customer, TokenAdmin)
	if !errors.Is(err, ErrTokenTypeMismatch) || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("customer token accepted as admin: %v", err)
	}
	if claims == nil || claims.Subject != "cust-1" {
		t.Fatalf("mismatch should still expose claims for auditing, got %+v", claims)
	}

	admin, _, err := tk.Issue(testAdmin, TokenAdmin)
	if err != nil {
		t.Fatalf("Issue admin: %v", err)
	}
	if _, err := tk.Verify("Bearer "+admin, TokenCustomer); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("admin token accepted as customer: %v", err)
	}
}

func TestTokenExpiryHasNoSkew(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := issued
	tk := NewTokenizer("test-secret", WithTokenTTL(time.Hour), WithTokenClock(func() time.Time { return clock }))

	token, _, err := tk.Issue(testAdmin, TokenAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock = issued.Add(time.Hour - time.Second)
	if _, err := tk.Verify("Bearer "+token, TokenAdmin); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}
	clock = issued.Add(time.Hour)
	if _, err := tk.Verify("Bearer "+token, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry at exp, got %v", err)
	}
}

func TestTokenTTLIsCapped(t *testing.T) {
	tk := NewTokenizer("s", WithTokenTTL(48*time.Hour))
	if tk.TTL() != MaxTokenTTL {
		t.Fatalf("ttl not capped: %v", tk.TTL())
	}
}

func TestVerifyRejectsFutureIssuedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := NewTokenizer("test-secret", WithTokenClock(fixedClock(now)))

	within := NewTokenizer("test-secret", WithTokenClock(fixedClock(now.Add(4*time.Second))))
	token, _, _ := within.Issue(testAdmin, TokenAdmin)
	if _, err := verifier.Verify("Bearer "+token, TokenAdmin); err != nil {
		t.Fatalf("iat within leeway rejected: %v", err)
	}

	ahead := NewTokenizer("test-secret", WithTokenClock(fixedClock(now.Add(time.Minute))))
	token, _, _ = ahead.Issue(testAdmin, TokenAdmin)
	if _, err := verifier.Verify("Bearer "+token, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("future iat accepted: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	tk := NewTokenizer("test-secret")
	token, _, err := tk.Issue(testAdmin, TokenAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewTokenizer("other-secret")
	if _, err := other.Verify("Bearer "+token, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}

	foreignIssuer := NewTokenizer("test-secret", WithTokenIssuer("someone-else"))
	if _, err := foreignIssuer.Verify("Bearer "+token, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong issuer accepted: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Email: testAdmin.Email, Role: RoleWebsiteAdmin, Type: TokenAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: DefaultIssuer, Subject: testAdmin.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := tk.Verify("Bearer "+unsigned, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none accepted: %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: testAdmin.Email, Role: "super_admin", Type: TokenAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: DefaultIssuer, Subject: testAdmin.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	if _, err := tk.Verify("Bearer "+signed, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown role accepted: %v", err)
	}
}

func TestVerifyHeaderShapes(t *testing.T) {
	tk := NewTokenizer("test-secret")
	token, _, _ := tk.Issue(testAdmin, TokenAdmin)
	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic " + token, token, "Token " + token} {
		if _, err := tk.Verify(header, TokenAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("header %q: expected ErrInvalidToken, got %v", header, err)
		}
	}
}

func TestUnconfiguredTokenizer(t *testing.T) {
	tk := NewTokenizer("   ")
	if tk.Configured() {
		t.Fatal("blank secret must not count as configured")
	}
	if _, _, err := tk.Issue(testAdmin, TokenAdmin); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("Issue: expected ErrMisconfigured, got %v", err)
	}
	if _, err := tk.Verify("Bearer x", TokenAdmin); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("Verify: expected ErrMisconfigured, got %v", err)
	}
}

func TestIssueValidatesInput(t *testing.T) {
	tk := NewTokenizer("test-secret")
	if _, _, err := tk.Issue(Principal{Role: RoleWebsiteAdmin}, TokenAdmin); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing id: %v", err)
	}
	if _, _, err := tk.Issue(Principal{ID: "x", Role: "root"}, TokenAdmin); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad role: %v", err)
	}
	if _, _, err := tk.Issue(testAdmin, TokenType("service")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: %v", err)
	}
	token, _, err := tk.Issue(testAdmin, TokenCustomer)
	if err != nil {
		t.Fatalf("customer issue: %v", err)
	}
	claims, err := tk.Verify("Bearer "+token, TokenCustomer)
	if err != nil {
		t.Fatalf("customer verify: %v", err)
	}
	if claims.Role != "" || strings.TrimSpace(claims.Subject) == "" {
		t.Fatalf("customer token should carry no role: %+v", claims)
	}
}
