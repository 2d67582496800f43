package models

import "time"

// KillSwitchStatus reports both sources of the kill switch and their OR
type KillSwitchStatus struct {
	Active   bool `json:"active"`
	Override bool `json:"override"`
	Flag     bool `json:"flag"`
}

// FeatureFlag is a persisted boolean toggle
type FeatureFlag struct {
	Key       string    `db:"key"`
	Enabled   bool      `db:"enabled"`
	UpdatedBy *string   `db:"updated_by"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DenyReason is the stable machine-readable code of a gate denial
type DenyReason string

const (
	DenyKillSwitchActive  DenyReason = "privacy_kill_switch_active"
	DenyRateLimitExceeded DenyReason = "rate_limit_exceeded"
	DenyAPIKeyRequired    DenyReason = "api_key_required"
	DenyInvalidAPIKey     DenyReason = "invalid_api_key"
	DenyCheckUnavailable  DenyReason = "security_check_unavailable"
	DenyAccountLocked     DenyReason = "account_locked"
	DenyForbidden         DenyReason = "forbidden"
	DenyUnauthorized      DenyReason = "unauthorized"
)
