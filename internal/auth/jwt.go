package auth

import (
	"errors"
	"time"

	"marketplace/config"
	"marketplace/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnknownRole  = errors.New("unknown role")
)

// Claims identifies an operator or seller. For sellers UserID is the seller id.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor formats the principal the way audit rows record it, e.g. "FINANCE:fin-7".
func (c *Claims) Actor() string {
	return c.Role + ":" + c.UserID
}

func (c *Claims) IsStaff() bool {
	return c.Role == domain.RoleAdmin || c.Role == domain.RoleFinance
}

func knownRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleFinance, domain.RoleSeller:
		return true
	}
	return false
}

// GenerateAccessToken issues a token for one of the engine's roles. Tokens are normally
// minted by the identity service; this is used by tooling and tests.
func GenerateAccessToken(cfg *config.JWTConfig, userID, role string) (string, error) {
	if !knownRole(role) {
		return "", ErrUnknownRole
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.AccessSecret))
}

// ParseAccessToken verifies signature, issuer and expiry and rejects roles the engine does not know.
func ParseAccessToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.AccessSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cfg.Issuer))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.UserID == "" || !knownRole(claims.Role):
		return nil, ErrInvalidToken
	}
	return claims, nil
}
