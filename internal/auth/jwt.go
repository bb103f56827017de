package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ipcollector/internal/support"
)

const SecretEnv = "IPCOLLECTOR_JWT_SECRET"

var ErrInvalidToken = errors.New("auth: invalid token")

// Authenticator issues and checks HS256 bearer tokens. With an empty secret
// it is disabled and every request is let through.
type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func FromEnv() *Authenticator {
	return New(support.GetEnv(SecretEnv, ""))
}

func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// GenerateJWT signs a token for subject that expires after ttl. A zero ttl
// produces a token without expiry; a negative one is already expired.
func (a *Authenticator) GenerateJWT(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth: no secret configured")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) ValidateJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
