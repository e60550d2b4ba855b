package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
)

const (
	apiKeyPrefix    = "cp_"
	apiKeyRawLength = 32 // hex characters following the prefix
)

var apiKeyFormat = regexp.MustCompile(`^cp_[0-9a-f]{32}$`)

// GenerateAPIKey returns a new raw API key of the form "cp_" + 32 hex
// characters, along with its 8-character prefix (used for display and
// fast lookup narrowing; the prefix alone never authenticates).
func GenerateAPIKey() (raw string, prefix string, err error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating key material: %w", err)
	}
	raw = apiKeyPrefix + hex.EncodeToString(b)
	prefix = raw[:8]
	return raw, prefix, nil
}

// IsValidAPIKeyFormat reports whether raw matches the expected shape
// before any hashing or lookup is attempted.
func IsValidAPIKeyFormat(raw string) bool {
	return apiKeyFormat.MatchString(raw)
}

// HashAPIKey returns the salted SHA-256 hex digest of a raw API key.
// salt is a per-deployment secret (API_KEY_SALT); the stored hash is
// SHA256(salt + ":" + key), never the bare key digest, so a stolen
// database dump cannot be used to forge keys without also knowing the
// deployment salt.
func HashAPIKey(salt, raw string) string {
	h := sha256.Sum256([]byte(salt + ":" + raw))
	return hex.EncodeToString(h[:])
}

// VerifyAPIKeyHash compares a computed hash against a stored hash in
// constant time.
func VerifyAPIKeyHash(computed, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
}
