package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestResolve_ValidToken(t *testing.T) {
	r := NewResolver(testSecret)
	token := signToken(t, testSecret, Claims{
		Email: "foreman@site.example",
		Role:  "ADMIN",
		StandardClaims: jwt.StandardClaims{
			Subject:   "user-42",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	})

	id := r.Resolve(token)
	if !id.Authenticated {
		t.Fatal("expected authenticated identity")
	}
	if id.ID != "user-42" {
		t.Errorf("expected id user-42, got %q", id.ID)
	}
	if id.DisplayLabel != "foreman" {
		t.Errorf("expected display label foreman, got %q", id.DisplayLabel)
	}
	if !id.IsAdmin() {
		t.Error("expected admin role")
	}
}

func TestResolve_NoToken(t *testing.T) {
	r := NewResolver(testSecret)

	id := r.Resolve("")
	if id.Authenticated {
		t.Fatal("expected anonymous identity")
	}
	if id.ID != "anonymous" {
		t.Errorf("expected anonymous id, got %q", id.ID)
	}
	if id.Role != RoleStaff {
		t.Errorf("anonymous identity should have lowest privilege, got %q", id.Role)
	}
}

func TestResolve_ExpiredTokenFailsOpen(t *testing.T) {
	r := NewResolver(testSecret)
	token := signToken(t, testSecret, Claims{
		Email: "pm@site.example",
		Role:  "ADMIN",
		StandardClaims: jwt.StandardClaims{
			Subject:   "user-7",
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		},
	})

	id := r.Resolve(token)
	if id.Authenticated {
		t.Fatal("expired token must fall back to anonymous")
	}
	if id.IsAdmin() {
		t.Error("fallback identity must not retain admin role")
	}
}

func TestResolve_WrongSecretFailsOpen(t *testing.T) {
	r := NewResolver(testSecret)
	token := signToken(t, "other-secret", Claims{
		StandardClaims: jwt.StandardClaims{Subject: "user-7"},
	})

	id := r.Resolve(token)
	if id.Authenticated {
		t.Fatal("token signed with wrong secret must fall back to anonymous")
	}
}

func TestResolve_MalformedTokenFailsOpen(t *testing.T) {
	r := NewResolver(testSecret)

	id := r.Resolve("not.a.jwt")
	if id.Authenticated {
		t.Fatal("malformed token must fall back to anonymous")
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	r := NewResolver(testSecret)
	token := signToken(t, testSecret, Claims{Email: "x@y.z"})

	if _, err := r.Verify(token); err == nil {
		t.Fatal("expected error for token without subject")
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"ADMIN":    RoleAdmin,
		"admin":    RoleAdmin,
		"INVESTOR": RoleInvestor,
		"STAFF":    RoleStaff,
		"":         RoleStaff,
		"VISITOR":  RoleStaff,
	}
	for in, want := range cases {
		if got := normalizeRole(in); got != want {
			t.Errorf("normalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayLabel_FallsBackToSubject(t *testing.T) {
	label := displayLabel(&Claims{StandardClaims: jwt.StandardClaims{Subject: "user-9"}})
	if label != "user-9" {
		t.Errorf("expected subject fallback, got %q", label)
	}
}
