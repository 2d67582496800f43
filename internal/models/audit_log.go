package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names recorded by the admission layer
const (
	AuditEventAPIKeyCreated       = "api_key_created"
	AuditEventAPIKeyRevoked       = "api_key_revoked"
	AuditEventAPIKeyRejected      = "api_key_rejected"
	AuditEventAccountLocked       = "account_locked"
	AuditEventKillSwitchToggled   = "kill_switch_toggled"
	AuditEventKillSwitchFlagSet   = "kill_switch_flag_set"
	AuditEventKillSwitchBlocked   = "kill_switch_request_blocked"
	AuditEventAdminAccessDenied   = "admin_access_denied"
	AuditEventSecurityCheckFailed = "security_check_unavailable"
)

// Target types
const (
	AuditTargetAPIKey     = "api_key"
	AuditTargetKillSwitch = "kill_switch"
	AuditTargetIdentifier = "login_identifier"
	AuditTargetRoute      = "route"
)

// Severity ranks how consequential an audit event is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity rejects unknown severities
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// AuditEvent is an immutable record of a security decision
type AuditEvent struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	ActorUserID *string       `db:"actor_user_id" json:"actor_user_id,omitempty"`
	ActorIP     *string       `db:"actor_ip" json:"actor_ip,omitempty"`
	EventName   string        `db:"event_name" json:"event_name"`
	TargetType  string        `db:"target_type" json:"target_type"`
	TargetID    *string       `db:"target_id" json:"target_id,omitempty"`
	Metadata    AuditMetadata `db:"metadata" json:"metadata,omitempty"`
	Severity    Severity      `db:"severity" json:"severity"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// AuditEventFilter narrows a read of the audit trail
type AuditEventFilter struct {
	EventName string
	Limit     int
	Offset    int
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(am))
}

// StrPtr returns nil for empty strings so optional columns stay NULL
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
