package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// APIKeyServiceInterface defines the interface for API key operations
type APIKeyServiceInterface interface {
	CreateKey(ctx context.Context, name, actorID, actorIP string) (*models.GeneratedAPIKey, error)
	ListActive(ctx context.Context) ([]*models.APIKey, error)
	Revoke(ctx context.Context, id, actorID, actorIP string) (bool, error)
}

// APIKeyHandler handles API key administration
type APIKeyHandler struct {
	service  APIKeyServiceInterface
	resolver *auth.IdentityResolver
	logger   *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler
func NewAPIKeyHandler(service APIKeyServiceInterface, resolver *auth.IdentityResolver, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service:  service,
		resolver: resolver,
		logger:   logger,
	}
}

// CreateAPIKeyRequest represents the request to create an API key
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateAPIKeyResponse carries the raw key. It is shown exactly once.
type CreateAPIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	Message   string `json:"message"`
}

// ListAPIKeysResponse represents the response for listing API keys
type ListAPIKeysResponse struct {
	Keys  []*APIKeyDTO `json:"keys"`
	Total int          `json:"total"`
}

// APIKeyDTO is the response DTO for API keys (never includes the secret or its hash)
type APIKeyDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// CreateAPIKey POST /admin/api-keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CreateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	generated, err := h.service.CreateKey(r.Context(), req.Name, claims.UserID, h.resolver.ClientIP(r))
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "invalid api key name")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create api key", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "failed to create api key")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		ID:        generated.ID,
		Name:      generated.Name,
		Key:       generated.RawKey,
		KeyPrefix: generated.KeyPrefix,
		Message:   "Save this API key - it will not be shown again",
	})
}

// ListAPIKeys GET /admin/api-keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list api keys", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "failed to list api keys")
		return
	}

	dtos := make([]*APIKeyDTO, len(keys))
	for i, key := range keys {
		dtos[i] = toAPIKeyDTO(key)
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListAPIKeysResponse{
		Keys:  dtos,
		Total: len(dtos),
	})
}

// RevokeAPIKey DELETE /admin/api-keys/{id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	keyID := chi.URLParam(r, "id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "invalid key id")
		return
	}

	revoked, err := h.service.Revoke(r.Context(), keyID, claims.UserID, h.resolver.ClientIP(r))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "api key not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to revoke api key", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "failed to revoke api key")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func toAPIKeyDTO(key *models.APIKey) *APIKeyDTO {
	if key == nil {
		return nil
	}
	return &APIKeyDTO{
		ID:         key.ID,
		Name:       key.Name,
		KeyPrefix:  key.KeyPrefix,
		CreatedBy:  key.CreatedBy,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}
}
