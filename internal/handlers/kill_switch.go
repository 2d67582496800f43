package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
)

// KillSwitchService is the admin surface of the kill switch
type KillSwitchService interface {
	Status(ctx context.Context) (models.KillSwitchStatus, error)
	SetActive(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error)
	SetFlag(ctx context.Context, enabled bool, actorID, actorIP string) (models.KillSwitchStatus, error)
}

type KillSwitchHandler struct {
	service  KillSwitchService
	resolver *auth.IdentityResolver
	logger   *slog.Logger
}

func NewKillSwitchHandler(service KillSwitchService, resolver *auth.IdentityResolver, logger *slog.Logger) *KillSwitchHandler {
	return &KillSwitchHandler{service: service, resolver: resolver, logger: logger}
}

// SetKillSwitchRequest toggles the process override. Pointer so a missing field is rejected.
type SetKillSwitchRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetFlagRequest toggles the persisted flag
type SetFlagRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// KillSwitchResponse is the status plus whether the persisted flag could be read
type KillSwitchResponse struct {
	models.KillSwitchStatus
	FlagUnavailable  bool `json:"flag_unavailable,omitempty"`
	AuditUnavailable bool `json:"audit_unavailable,omitempty"`
}

// GetStatus GET /admin/kill-switch
func (h *KillSwitchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "kill switch flag unavailable", slog.String("error", err.Error()))
	}

	pkghttp.WriteJSON(w, http.StatusOK, KillSwitchResponse{KillSwitchStatus: status, FlagUnavailable: err != nil})
}

// SetActive PUT /admin/kill-switch
func (h *KillSwitchHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SetKillSwitchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	// The override is applied even when the flag or the audit trail fails;
	// both failures are reported back to the operator.
	status, err := h.service.SetActive(r.Context(), *req.Active, claims.UserID, h.resolver.ClientIP(r))
	resp := KillSwitchResponse{KillSwitchStatus: status}
	if err != nil {
		resp.FlagUnavailable = errors.Is(err, models.ErrStorageUnavailable)
		resp.AuditUnavailable = errors.Is(err, models.ErrAuditWriteFailed)
		h.logger.ErrorContext(r.Context(), "kill switch override set with errors",
			slog.Bool("flag_unavailable", resp.FlagUnavailable),
			slog.Bool("audit_unavailable", resp.AuditUnavailable),
			slog.String("error", err.Error()))
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// SetFlag PUT /admin/kill-switch/flag
func (h *KillSwitchHandler) SetFlag(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SetFlagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	status, err := h.service.SetFlag(r.Context(), *req.Enabled, claims.UserID, h.resolver.ClientIP(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to set kill switch flag", slog.String("error", err.Error()))
		pkghttp.WriteServiceUnavailable(w, string(models.DenyCheckUnavailable), "Kill switch flag could not be updated")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, KillSwitchResponse{KillSwitchStatus: status})
}
