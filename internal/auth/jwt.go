package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/cast-hub-go/internal/config"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type tokenClaims struct {
	ClientName string `json:"clientName"`
	jwt.RegisteredClaims
}

// GenerateToken creates an API token for the named client.
func GenerateToken(cfg config.Config, clientName string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		ClientName: clientName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.TokenExpirySec) * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.APISecret))
}

// VerifyToken parses and validates the JWT, returning the client name.
func VerifyToken(cfg config.Config, token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(cfg.APISecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	return claims.ClientName, nil
}
