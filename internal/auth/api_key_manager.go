package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// APIKeyPrefix marks tollgate machine credentials
	APIKeyPrefix = "tg_"

	apiKeySecretBytes = 32 // 256 bits
	apiKeyDisplayLen  = 12
)

// ErrMalformedAPIKey is returned for keys that cannot have been issued by the manager
var ErrMalformedAPIKey = errors.New("invalid API key format")

// APIKeyManager handles API key generation, hashing, and validation
type APIKeyManager struct {
	prefix  string
	entropy io.Reader
}

// NewAPIKeyManager creates a new APIKeyManager backed by crypto/rand
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		prefix:  APIKeyPrefix,
		entropy: rand.Reader,
	}
}

// WithEntropy swaps the randomness source; used to simulate entropy failure
func (m *APIKeyManager) WithEntropy(r io.Reader) *APIKeyManager {
	return &APIKeyManager{prefix: m.prefix, entropy: r}
}

// KeyLength is the exact length of every issued key
func (m *APIKeyManager) KeyLength() int {
	return len(m.prefix) + apiKeySecretBytes*2
}

// GenerateAPIKey generates a key in the format tg_<64 hex chars>.
// Returns the raw key (shown once) and its SHA-256 hash (stored).
func (m *APIKeyManager) GenerateAPIKey() (rawKey, hash string, err error) {
	randomBytes := make([]byte, apiKeySecretBytes)
	if _, err := io.ReadFull(m.entropy, randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawKey = m.prefix + hex.EncodeToString(randomBytes)
	return rawKey, HashAPIKey(rawKey), nil
}

// HashAPIKey returns the hex SHA-256 of a raw key
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// ValidateAndHashAPIKey validates the format and returns the hash
func (m *APIKeyManager) ValidateAndHashAPIKey(rawKey string) (string, error) {
	if !strings.HasPrefix(rawKey, m.prefix) || len(rawKey) != m.KeyLength() {
		return "", ErrMalformedAPIKey
	}
	if _, err := hex.DecodeString(rawKey[len(m.prefix):]); err != nil {
		return "", ErrMalformedAPIKey
	}
	return HashAPIKey(rawKey), nil
}

// GetKeyPrefix returns the first 12 characters of the key (for display)
func (m *APIKeyManager) GetKeyPrefix(rawKey string) (string, error) {
	if len(rawKey) < apiKeyDisplayLen {
		return "", errors.New("API key too short")
	}
	return rawKey[:apiKeyDisplayLen], nil
}

// ConstantTimeHashCompare compares two hashes without early exit
func ConstantTimeHashCompare(hash1, hash2 string) bool {
	return subtle.ConstantTimeCompare([]byte(hash1), []byte(hash2)) == 1
}
