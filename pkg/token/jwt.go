// Package token issues and verifies the HS256 service tokens that guard the
// ingest and chat routes.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried by service tokens.
const (
	RoleAdmin  = "admin"
	RoleReader = "reader"
)

// ErrInvalidToken is returned for tokens that parse but fail validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs and verifies tokens with one shared secret.
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// CustomClaims identifies the calling service and what it may do.
type CustomClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a manager issuing tokens valid for expireHours.
func NewJWTManager(secret string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
	}
}

// GenerateToken issues a token for subject with role.
func (m *JWTManager) GenerateToken(subject, role string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// VerifyToken returns the claims of a valid token.
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
