package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenPrefix is prepended to every session token so tokens are
// recognizable in logs and secret scanners.
const TokenPrefix = "edsk_"

const tokenRandomBytes = 32

// GenerateToken creates a new opaque session token. It returns the
// plaintext token (shown to the caller exactly once) together with the
// SHA-256 hash stored at rest and the short display prefix used to
// identify the session without revealing the secret.
func GenerateToken() (plaintext, hash, displayPrefix string, err error) {
	raw := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generating token: %w", err)
	}
	plaintext = TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	hash = HashToken(plaintext)
	displayPrefix = plaintext[:len(TokenPrefix)+8]
	return plaintext, hash, displayPrefix, nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token. Only the
// hash is persisted; lookups hash the presented token and compare.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidToken reports whether the presented string has the shape of a
// session token. It filters garbage before a database round trip.
func ValidToken(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	body := strings.TrimPrefix(token, TokenPrefix)
	if len(body) != base64.RawURLEncoding.EncodedLen(tokenRandomBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}

// TokensEqual compares two token hashes in constant time
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
