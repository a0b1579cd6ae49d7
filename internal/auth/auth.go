// Package auth resolves bearer tokens to user ids. Authentication is
// opportunistic everywhere it is used: a missing or invalid token yields an
// anonymous caller, never a rejected request. Endpoints that need an owner
// enforce that themselves.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken reports a token that failed parsing, signature
// verification or expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates HS256 tokens and extracts the subject claim.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier around the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// UserIDFromToken returns the token's subject, or ErrInvalidToken.
func (v *Verifier) UserIDFromToken(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return subject, nil
}
