package api_keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keySeparator = "_"
	// startLength is how many characters of the random part stay visible.
	startLength = 4
)

// GenerateSecret returns a new "<prefix>_<random>" secret built from byteLength random bytes.
func GenerateSecret(prefix string, byteLength int) (string, error) {
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return prefix + keySeparator + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns the hex SHA-256 of a secret. Only hashes are stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretStart returns the prefix plus the first few characters of the random part.
func SecretStart(secret string) string {
	prefix, random, found := strings.Cut(secret, keySeparator)
	if !found {
		prefix, random = "", secret
	}
	if len(random) > startLength {
		random = random[:startLength]
	}
	if prefix == "" {
		return random
	}
	return prefix + keySeparator + random
}
