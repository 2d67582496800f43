package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRepositoryImpl implements APIKeyRepository
type APIKeyRepositoryImpl struct {
	db   *database.DB
	pool *pgxpool.Pool
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *database.DB) APIKeyRepository {
	return &APIKeyRepositoryImpl{db: db, pool: db.Pool}
}

const apiKeyColumns = `id, name, key_hash, key_prefix, created_by, created_at, last_used_at, revoked_at`

// scanAPIKeyRow handles nullable fields and populates an APIKey model from a database row
func scanAPIKeyRow(scanner rowScanner) (*models.APIKey, error) {
	var apiKey models.APIKey

	err := scanner.Scan(
		&apiKey.ID,
		&apiKey.Name,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.CreatedBy,
		&apiKey.CreatedAt,
		&apiKey.LastUsedAt,
		&apiKey.RevokedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &apiKey, nil
}

func scanAPIKeyRows(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)

	for rows.Next() {
		apiKey, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		apiKeys = append(apiKeys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return apiKeys, nil
}

// Create stores a new API key in the database
func (r *APIKeyRepositoryImpl) Create(ctx context.Context, apiKey *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, name, key_hash, key_prefix, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		apiKey.ID,
		apiKey.Name,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.CreatedBy,
		apiKey.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// GetByHash retrieves an active API key by its hash
func (r *APIKeyRepositoryImpl) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
		LIMIT 1
	`

	apiKey, err := scanAPIKeyRow(r.pool.QueryRow(ctx, query, keyHash))
	if err != nil {
		return nil, err
	}

	// Index lookups are not constant time; the final comparison is.
	if !auth.ConstantTimeHashCompare(apiKey.KeyHash, keyHash) {
		return nil, models.ErrNotFound
	}

	return apiKey, nil
}

// GetByID retrieves an API key by its ID
func (r *APIKeyRepositoryImpl) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE id = $1
	`

	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, id))
}

// ListActive returns non-revoked keys, newest first
func (r *APIKeyRepositoryImpl) ListActive(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE revoked_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}

	return scanAPIKeyRows(rows)
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepositoryImpl) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// Revoke sets revoked_at once. Already-revoked keys are left untouched.
func (r *APIKeyRepositoryImpl) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	var revoked bool
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 1 {
			revoked = true
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM api_keys WHERE id = $1)`, id).Scan(&exists); err != nil {
			return database.MapPostgresError(err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return revoked, nil
}
