package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// prefixSecret and prefixAPIKey are the two accepted bearer-token
	// prefixes from §4.5 step 3.
	prefixSecret = "sk_"
	prefixAPIKey = "ak_"
)

// ParseBearer strips the "Bearer " scheme and validates the token's
// prefix. ok is false for any header without the scheme or an accepted
// prefix, an empty header included; callers that need a distinct error
// kind for a missing header check for it before calling.
func ParseBearer(header string) (token string, ok bool) {
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return "", false
	}
	token = strings.TrimPrefix(header, scheme)
	if !strings.HasPrefix(token, prefixSecret) && !strings.HasPrefix(token, prefixAPIKey) {
		return "", false
	}
	return token, true
}

// HashToken renders a bearer token's SHA-256 digest as lowercase hex, the
// key-store lookup key per §4.5 step 5.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateKey mints a new bearer token with the given prefix followed by
// entropyBytes of random data, base64url-encoded without padding.
func GenerateKey(prefix string, entropyBytes int) (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key entropy: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
