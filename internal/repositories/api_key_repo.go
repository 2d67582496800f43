package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
)

// APIKeyRepository defines the interface for API key data access operations
type APIKeyRepository interface {
	// Create stores a new API key
	Create(ctx context.Context, apiKey *models.APIKey) error

	// GetByHash retrieves a non-revoked API key by its hash
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)

	// GetByID retrieves an API key by its ID, revoked or not
	GetByID(ctx context.Context, id string) (*models.APIKey, error)

	// ListActive returns every key that has not been revoked
	ListActive(ctx context.Context) ([]*models.APIKey, error)

	// UpdateLastUsed records a successful use
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error

	// Revoke sets revoked_at if it is not already set.
	// Returns true only when this call performed the transition; ErrNotFound for unknown ids.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
}
