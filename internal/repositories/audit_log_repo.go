package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// AuditLogRepository handles audit event data access. Events are insert-only.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditEventColumns = `id, actor_user_id, actor_ip, event_name, target_type, target_id, metadata, severity, created_at`

func scanAuditEventRow(row rowScanner) (*models.AuditEvent, error) {
	var ev models.AuditEvent

	err := row.Scan(
		&ev.ID, &ev.ActorUserID, &ev.ActorIP, &ev.EventName, &ev.TargetType,
		&ev.TargetID, &ev.Metadata, &ev.Severity, &ev.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &ev, nil
}

func scanAuditEventRows(rows pgx.Rows) ([]*models.AuditEvent, error) {
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)

	for rows.Next() {
		ev, err := scanAuditEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}

	return events, nil
}

// Create appends an audit event
func (r *AuditLogRepository) Create(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error) {
	query := `
		INSERT INTO audit_events (actor_user_id, actor_ip, event_name, target_type, target_id, metadata, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + auditEventColumns

	result, err := scanAuditEventRow(r.pool.QueryRow(
		ctx, query,
		ev.ActorUserID, ev.ActorIP, ev.EventName, ev.TargetType, ev.TargetID, ev.Metadata, ev.Severity,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit event: %w", err)
	}

	return result, nil
}

// List returns the most recent events, optionally filtered by name
func (r *AuditLogRepository) List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditEventColumns + `
		FROM audit_events
		WHERE ($1 = '' OR event_name = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, filter.EventName, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	return scanAuditEventRows(rows)
}
