package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/repositories"
	"github.com/google/uuid"
)

// APIKeyService issues, validates and revokes machine-client credentials
type APIKeyService struct {
	repo       repositories.APIKeyRepository
	keyManager *auth.APIKeyManager
	audit      AuditRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewAPIKeyService creates a new APIKeyService
func NewAPIKeyService(repo repositories.APIKeyRepository, keyManager *auth.APIKeyManager, audit AuditRecorder, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		repo:       repo,
		keyManager: keyManager,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the service's time source
func (s *APIKeyService) WithClock(now func() time.Time) *APIKeyService {
	s.now = now
	return s
}

// CreateKey generates a key. The raw secret is returned here and nowhere else.
func (s *APIKeyService) CreateKey(ctx context.Context, name, actorID, actorIP string) (*models.GeneratedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrBadRequest)
	}

	rawKey, keyHash, err := s.keyManager.GenerateAPIKey()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate api key", slog.Any("error", err))
		return nil, err
	}

	keyPrefix, err := s.keyManager.GetKeyPrefix(rawKey)
	if err != nil {
		return nil, err
	}

	apiKey := &models.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		CreatedBy: actorID,
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, apiKey); err != nil {
		s.logger.ErrorContext(ctx, "failed to store api key", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	err = s.audit.Record(ctx, &models.AuditEvent{
		ActorUserID: models.StrPtr(actorID),
		ActorIP:     models.StrPtr(actorIP),
		EventName:   models.AuditEventAPIKeyCreated,
		TargetType:  models.AuditTargetAPIKey,
		TargetID:    models.StrPtr(apiKey.ID),
		Severity:    models.SeverityHigh,
		Metadata: models.AuditMetadata{
			"name":       name,
			"key_prefix": keyPrefix,
		},
	})
	if err != nil {
		return nil, err
	}

	return &models.GeneratedAPIKey{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		RawKey:    rawKey,
		KeyPrefix: keyPrefix,
	}, nil
}

// Authenticate resolves rawKey to an active key and records the use.
// Malformed, unknown and revoked keys all yield ErrInvalidAPIKey; storage
// failures are returned wrapped so the caller can fail closed.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey, sourceIP string) (*models.APIKey, error) {
	keyHash, err := s.keyManager.ValidateAndHashAPIKey(rawKey)
	if err != nil {
		return nil, models.ErrInvalidAPIKey
	}

	apiKey, err := s.repo.GetByHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if !apiKey.IsActive() || !auth.ConstantTimeHashCompare(apiKey.KeyHash, keyHash) {
		return nil, models.ErrInvalidAPIKey
	}

	now := s.now()
	if err := s.repo.UpdateLastUsed(ctx, apiKey.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update api key last_used_at",
			slog.String("key_id", apiKey.ID),
			slog.String("source_ip", sourceIP),
			slog.Any("error", err),
		)
	} else {
		apiKey.LastUsedAt = &now
	}

	return apiKey, nil
}

// ValidateAndTouch reports whether rawKey is an active key. It never errors.
func (s *APIKeyService) ValidateAndTouch(ctx context.Context, rawKey, sourceIP string) bool {
	_, err := s.Authenticate(ctx, rawKey, sourceIP)
	if err != nil && !errors.Is(err, models.ErrInvalidAPIKey) {
		s.logger.ErrorContext(ctx, "api key validation failed", slog.Any("error", err))
	}
	return err == nil
}

// Revoke retires a key. Only the call that performs the transition returns
// true and is audited.
func (s *APIKeyService) Revoke(ctx context.Context, id, actorID, actorIP string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, models.ErrNotFound
	}

	revoked, err := s.repo.Revoke(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.ErrNotFound
		}
		s.logger.ErrorContext(ctx, "failed to revoke api key", slog.Any("error", err))
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}

	if !revoked {
		return false, nil
	}

	err = s.audit.Record(ctx, &models.AuditEvent{
		ActorUserID: models.StrPtr(actorID),
		ActorIP:     models.StrPtr(actorIP),
		EventName:   models.AuditEventAPIKeyRevoked,
		TargetType:  models.AuditTargetAPIKey,
		TargetID:    models.StrPtr(id),
		Severity:    models.SeverityHigh,
	})
	if err != nil {
		return true, err
	}

	return true, nil
}

// ListActive returns every key that has not been revoked
func (s *APIKeyService) ListActive(ctx context.Context) ([]*models.APIKey, error) {
	keys, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list api keys", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}
