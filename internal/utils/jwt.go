package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	scopeSession = "session"
	scopeReset   = "reset"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or scope checks.
var ErrInvalidToken = errors.New("invalid or expired token")

type sessionClaims struct {
	UserID string `json:"user_id"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

type resetClaims struct {
	Phone string `json:"phone"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session JWT for the provided user ID.
func GenerateToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		UserID: userID.String(),
		Scope:  scopeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a session token and returns the embedded user ID.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	claims := &sessionClaims{}
	if err := parseHS256(secret, tokenString, claims); err != nil {
		return uuid.Nil, err
	}
	if claims.Scope != scopeSession {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

// GenerateResetToken creates a signed password-reset JWT bound to a phone number.
func GenerateResetToken(secret, phone string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &resetClaims{
		Phone: phone,
		Scope: scopeReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phone,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseResetToken validates a reset token and returns the phone it was issued for.
func ParseResetToken(secret, tokenString string) (string, error) {
	claims := &resetClaims{}
	if err := parseHS256(secret, tokenString, claims); err != nil {
		return "", err
	}
	if claims.Scope != scopeReset || claims.Phone == "" {
		return "", ErrInvalidToken
	}
	return claims.Phone, nil
}

func parseHS256(secret, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
