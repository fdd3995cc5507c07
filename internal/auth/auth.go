// Package auth resolves the bearer credential presented at connection time
// into an identity. Resolution is deliberately fail-open: a missing or
// invalid token yields the anonymous identity instead of a refused
// connection, so the connection itself never fails authentication.
package auth

import (
	"fmt"
	"log"
	"strings"

	"github.com/golang-jwt/jwt"
)

// Roles carried in token claims. STAFF is the lowest privilege and is what
// anonymous connections receive.
const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleInvestor = "INVESTOR"
)

// Identity is the authenticated (or anonymous) principal bound to a
// connection for its whole lifetime.
type Identity struct {
	ID            string // subject claim, or "anonymous"
	DisplayLabel  string // short label shown next to messages
	Role          string
	Authenticated bool // false for the anonymous fallback branch
}

// IsAdmin reports whether the identity may perform admin-gated operations.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Anonymous is the identity used when no credential is presented or
// verification fails.
func Anonymous() Identity {
	return Identity{
		ID:           "anonymous",
		DisplayLabel: "anonymous",
		Role:         RoleStaff,
	}
}

// Claims is the JWT payload issued by the account service.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.StandardClaims
}

// Resolver verifies bearer tokens against a shared HMAC secret.
type Resolver struct {
	secret []byte
}

// NewResolver creates a Resolver using the given signing secret.
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the authenticated identity.
// Callers that want the fail-open behavior should use Resolve instead.
func (r *Resolver) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: token verification failed: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("auth: token missing subject")
	}

	return Identity{
		ID:            claims.Subject,
		DisplayLabel:  displayLabel(claims),
		Role:          normalizeRole(claims.Role),
		Authenticated: true,
	}, nil
}

// Resolve maps a connection-time credential to an identity. No token yields
// the anonymous identity; a token that fails verification is logged and also
// falls back to anonymous rather than refusing the connection. Pure function
// of the token apart from logging.
func (r *Resolver) Resolve(token string) Identity {
	if token == "" {
		return Anonymous()
	}

	id, err := r.Verify(token)
	if err != nil {
		log.Printf("auth: falling back to anonymous identity: %v", err)
		return Anonymous()
	}
	return id
}

// displayLabel derives the label shown next to messages. Tokens carry the
// user's email; the local part doubles as the display name, matching how the
// account service provisions labels.
func displayLabel(claims *Claims) string {
	if claims.Email == "" {
		return claims.Subject
	}
	if i := strings.IndexByte(claims.Email, '@'); i > 0 {
		return claims.Email[:i]
	}
	return claims.Email
}

// normalizeRole maps unknown or absent role claims to the lowest privilege.
func normalizeRole(role string) string {
	switch strings.ToUpper(role) {
	case RoleAdmin:
		return RoleAdmin
	case RoleInvestor:
		return RoleInvestor
	default:
		return RoleStaff
	}
}
