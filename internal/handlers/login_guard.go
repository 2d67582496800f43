package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/tollgate/internal/middleware"
	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
	pkglogger "github.com/BradenHooton/tollgate/pkg/logger"
)

// LoginGuardService is consumed by the business auth service over the internal API
type LoginGuardService interface {
	Record(ctx context.Context, identifier, sourceIP, userAgent string, success bool) error
	Check(ctx context.Context, identifier string) (models.LockoutStatus, error)
}

type LoginGuardHandler struct {
	guard  LoginGuardService
	logger *slog.Logger
}

func NewLoginGuardHandler(guard LoginGuardService, logger *slog.Logger) *LoginGuardHandler {
	return &LoginGuardHandler{guard: guard, logger: logger}
}

// RecordAttemptRequest is one authentication outcome reported by a machine client
type RecordAttemptRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	SourceIP   string `json:"source_ip" validate:"omitempty,ip"`
	UserAgent  string `json:"user_agent" validate:"max=512"`
	Success    *bool  `json:"success" validate:"required"`
}

// RecordAttempt POST /internal/login-attempts
func (h *LoginGuardHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identifier := normalizeIdentifier(req.Identifier)
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "identifier is required")
		return
	}

	if err := h.guard.Record(r.Context(), identifier, req.SourceIP, req.UserAgent, *req.Success); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "invalid login attempt")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to record login attempt",
			slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
			slog.String("client", clientName(r)),
			slog.String("error", err.Error()))
		pkghttp.WriteServiceUnavailable(w, string(models.DenyCheckUnavailable), "Login attempt could not be recorded")
		return
	}

	status, err := h.guard.Check(r.Context(), identifier)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, string(models.DenyCheckUnavailable), "Lockout state unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, status)
}

// Lockout GET /internal/lockout?identifier=
func (h *LoginGuardHandler) Lockout(w http.ResponseWriter, r *http.Request) {
	identifier := normalizeIdentifier(r.URL.Query().Get("identifier"))
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "identifier is required")
		return
	}

	status, err := h.guard.Check(r.Context(), identifier)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, string(models.DenyCheckUnavailable), "Lockout state unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// normalizeIdentifier makes "Alice@Example.com " and "alice@example.com" share a lockout
func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clientName(r *http.Request) string {
	if key := middleware.APIKeyFromContext(r.Context()); key != nil {
		return key.Name
	}
	return ""
}
