package models

import "time"

// APIKey is a machine-client credential. Only the hash of the secret is kept.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"` // Never exposed
	KeyPrefix  string     `json:"key_prefix"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// GeneratedAPIKey is returned once at creation and carries the raw secret
type GeneratedAPIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RawKey    string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
}

// IsActive returns true if the key has not been revoked
func (k *APIKey) IsActive() bool {
	return k.RevokedAt == nil
}
