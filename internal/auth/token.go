// Package auth implements credential handling: password login, phone
// OTP verification, and the signed tokens that carry a principal across
// requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shopcore/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)

// PurposeResetConfirmed marks a token issued after a successful OTP
// check; it is only good for setting a new password.
const PurposeResetConfirmed = "password_reset_confirmed"

// resetTokenTTL bounds how long a confirmed OTP stays usable.
const resetTokenTTL = 10 * time.Minute

// Claims is the JWT payload. Permissions travel in wire form and are
// parsed back into a typed set on verification. Purpose is empty on
// session tokens.
type Claims struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Purpose     string   `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies principal-bearing tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the principal.
func (t *TokenIssuer) Issue(p domain.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        string(p.Role),
		Permissions: p.Permissions.Tokens(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueReset signs a short-lived token proving the subject passed an
// OTP check. It carries no permissions and a purpose claim, so it can
// never be used as a session token by a handler that checks purpose.
func (t *TokenIssuer) IssueReset(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Purpose: PurposeResetConfirmed,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(resetTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning the principal
// it carries. Reset tokens are rejected here.
func (t *TokenIssuer) Verify(raw string) (domain.Principal, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return domain.Principal{}, err
	}
	if claims.Purpose != "" {
		return domain.Principal{}, fmt.Errorf("%w: not a session token", ErrInvalidToken)
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return domain.Principal{
		ID:          claims.Subject,
		Role:        role,
		Permissions: domain.NewPermissionSet(claims.Permissions),
	}, nil
}

// VerifyReset validates a reset token and returns the user id it was
// issued for.
func (t *TokenIssuer) VerifyReset(raw string) (string, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return "", err
	}
	if claims.Purpose != PurposeResetConfirmed {
		return "", fmt.Errorf("%w: not a reset token", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) parse(raw string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

// TTL reports the configured token lifetime, used when revoking tokens
// so the blacklist entry outlives the token itself.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
