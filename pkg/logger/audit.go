package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditRecord is the log-side view of a security audit event
type AuditRecord struct {
	EventName   string
	Severity    string
	ActorUserID string
	ActorIP     string
	TargetType  string
	TargetID    string
	Metadata    map[string]interface{}
}

// AuditLogger writes audit records to the structured log
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes the record at a level derived from its severity
func (al *AuditLogger) Log(ctx context.Context, rec AuditRecord) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_name", rec.EventName),
		slog.String("severity", rec.Severity),
		slog.String("target_type", rec.TargetType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if rec.ActorUserID != "" {
		attrs = append(attrs, slog.String("actor_user_id", rec.ActorUserID))
	}
	if rec.ActorIP != "" {
		attrs = append(attrs, slog.String("actor_ip", rec.ActorIP))
	}
	if rec.TargetID != "" {
		attrs = append(attrs, slog.String("target_id", rec.TargetID))
	}
	if len(rec.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", rec.Metadata))
	}

	al.logger.LogAttrs(ctx, SeverityLevel(rec.Severity), "audit", attrs...)
}

// SeverityLevel maps an audit severity onto a log level
func SeverityLevel(severity string) slog.Level {
	switch severity {
	case "critical":
		return slog.LevelError
	case "high", "medium":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
