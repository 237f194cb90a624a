/*
Package auth carries who is making a request.

PURPOSE:
  A Principal (store or admin) is decoded from a signed session token by
  the HTTP layer, placed in the request context, and then handed explicitly
  to the operations that need it. Nothing reads identity from globals.

TOKENS:
  HS256 JWTs (golang-jwt/jwt/v5) with the role, tenant id and username as
  claims, a random token ID and an expiry. Logout is client-side: tokens
  are stateless and expire on their own.

SEE ALSO:
  - account/account.go: Issues principals on login
  - api/middleware.go: Decodes tokens per request
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/attendance/attendance"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrForbidden = errors.New("forbidden")
)

// =============================================================================
// PRINCIPAL
// =============================================================================

type Role string

const (
	RoleStore Role = "store"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	Role     Role
	TenantID attendance.TenantID // zero for admins
	Username string
}

func StorePrincipal(t attendance.Tenant) Principal {
	return Principal{Role: RoleStore, TenantID: t.ID, Username: t.Username}
}

func AdminPrincipal(username string) Principal {
	return Principal{Role: RoleAdmin, Username: username}
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (p Principal) IsStore() bool { return p.Role == RoleStore && p.TenantID != 0 }

// RequireAdmin returns ErrForbidden unless p is an admin.
func (p Principal) RequireAdmin() error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// =============================================================================
// TOKENS
// =============================================================================

type Claims struct {
	Role     Role   `json:"role"`
	TenantID int64  `json:"tenant_id,omitempty"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry.
func (t *Tokens) Issue(p Principal) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		Role:     p.Role,
		TenantID: int64(p.TenantID),
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "attendance",
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its principal.
func (t *Tokens) Parse(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	p := Principal{Role: claims.Role, TenantID: attendance.TenantID(claims.TenantID), Username: claims.Username}
	switch {
	case p.IsAdmin():
	case p.IsStore():
	default:
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}
