package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// adminClaims identifies the holder of an operator-issued JWT, the
// alternative to a static sk_/ak_ API key for /admin/* routes per
// SPEC_FULL's operator-JWT entry.
type adminClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs a short-lived admin JWT for subject, HS256 over
// secret.
func IssueAdminToken(subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &adminClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// looksLikeJWT is a cheap pre-check before attempting a full parse: a JWT
// is always three base64url segments joined by dots.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// validateAdminToken verifies token against secret and returns the
// subject claim on success.
func validateAdminToken(token, secret string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &adminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*adminClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid admin token")
	}
	return claims.Subject, nil
}
