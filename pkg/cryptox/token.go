package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Byte lengths of the random values used by the login flow, before encoding.
const (
	// StateSize is used for the OAuth anti-CSRF state (22 chars base64url).
	StateSize = 16
	// VerifierSize is used for the PKCE code verifier (86 chars base64url,
	// inside the 43..128 range RFC 7636 allows).
	VerifierSize = 64
)

// GenerateToken returns size cryptographically random bytes encoded as
// unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// S256Challenge is BASE64URL(SHA256(verifier)) as used by PKCE.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FingerprintToken returns a short, non-reversible label for a secret so it
// can be correlated in logs without ever logging the secret itself.
func FingerprintToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:12]
}
