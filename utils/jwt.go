package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vitalog/points-engine/config"
)

var errBadClaims = errors.New("token claims are not usable")

// Claims is the token shape the product's auth service issues. The engine
// only verifies tokens; GenerateToken exists for tests and local tooling,
// production tokens are always signed elsewhere.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseToken verifies the signature and validity window of a bearer token
// and returns its claims.
func ParseToken(raw string) (*Claims, error) {
	secret := []byte(config.Get().JWTSecret)

	parsed, err := jwt.ParseWithClaims(raw, &Claims{},
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == 0 {
		return nil, errBadClaims
	}
	return claims, nil
}

// GenerateToken signs a token for the given identity with the shared secret.
func GenerateToken(userID uint, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(config.Get().JWTSecret))
}
