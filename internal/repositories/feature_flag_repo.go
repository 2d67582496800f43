package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/models"
)

// FeatureFlagRepository reads and writes persisted feature flags
type FeatureFlagRepository struct {
	db *database.DB
}

// NewFeatureFlagRepository creates a new FeatureFlagRepository
func NewFeatureFlagRepository(db *database.DB) *FeatureFlagRepository {
	return &FeatureFlagRepository{db: db}
}

// Get returns the flag or ErrNotFound
func (r *FeatureFlagRepository) Get(ctx context.Context, key string) (*models.FeatureFlag, error) {
	query := `SELECT key, enabled, updated_by, updated_at FROM feature_flags WHERE key = $1`

	var flag models.FeatureFlag
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(&flag.Key, &flag.Enabled, &flag.UpdatedBy, &flag.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &flag, nil
}

// Set creates or updates a flag
func (r *FeatureFlagRepository) Set(ctx context.Context, key string, enabled bool, updatedBy string) error {
	query := `
		INSERT INTO feature_flags (key, enabled, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Pool.Exec(ctx, query, key, enabled, models.StrPtr(updatedBy)); err != nil {
		return fmt.Errorf("failed to set feature flag %s: %w", key, database.MapPostgresError(err))
	}

	return nil
}
