// Package keys manages API credentials: generation, validation, zero-downtime
// rotation, deactivation, and expiry cleanup. The store holds only a one-way
// digest of each secret; the plaintext exists solely in the Generate return
// value, so a leaked store dump cannot be replayed as credentials.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// secretLength is the length of the random part of the secret in bytes.
	secretLength = 32

	// DisplayPrefixLength is the number of characters of the secret shown
	// in listings so users can tell their keys apart.
	DisplayPrefixLength = 10
)

// generateSecret creates a new random API key secret with the given prefix.
// Returns: full secret (shown once to the caller), its SHA-256 hex digest
// (the only form the store ever holds), and the display prefix.
//
// The digest is SHA-256 rather than a KDF because validation resolves the
// key record through a digest-to-id reverse index, which requires a
// deterministic hash. The secret carries 256 bits of CSPRNG entropy, so
// offline guessing is not a realistic attack and key stretching adds nothing.
func generateSecret(prefix string) (secret, digest, displayPrefix string, err error) {
	randomBytes := make([]byte, secretLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullSecret := fmt.Sprintf("%s_%s", prefix, randomPart)

	display := fullSecret
	if len(fullSecret) > DisplayPrefixLength {
		display = fullSecret[:DisplayPrefixLength]
	}

	return fullSecret, hashSecret(fullSecret), display, nil
}

// hashSecret returns the SHA-256 hex digest of a presented secret.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
