package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (identifier, source_ip, user_agent, success, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Identifier,
		attempt.SourceIP,
		attempt.UserAgent,
		attempt.Success,
		attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", database.MapPostgresError(err))
	}

	return nil
}

// CountFailuresSince returns the number of failed attempts for an identifier at or after since
func (r *LoginAttemptRepository) CountFailuresSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE identifier = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, identifier, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count login failures: %w", err)
	}
	return count, nil
}

// LatestFailureSince returns the most recent failure at or after since, or nil
func (r *LoginAttemptRepository) LatestFailureSince(ctx context.Context, identifier string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempted_at FROM login_attempts
		WHERE identifier = $1 AND success = false AND attempted_at >= $2
		ORDER BY attempted_at DESC
		LIMIT 1
	`

	var at time.Time
	err := r.db.Pool.QueryRow(ctx, query, identifier, since).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest login failure: %w", err)
	}

	return &at, nil
}

// DeleteBefore prunes attempts older than before and returns how many were removed
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
