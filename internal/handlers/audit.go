package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
)

// AuditLister reads the audit trail
type AuditLister interface {
	List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	service AuditLister
	logger  *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

// AuditEventsResponse is one page of the audit trail
type AuditEventsResponse struct {
	Events []*models.AuditEvent `json:"events"`
	Count  int                  `json:"count"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListEvents GET /admin/audit-events?event=&limit=&offset=
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	offset := 0

	if l := q.Get("limit"); l != "" {
		if _, err := parseIntParam(l, &limit, 1, 100); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	if o := q.Get("offset"); o != "" {
		if _, err := parseIntParam(o, &offset, 0, 100000); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	events, err := h.service.List(r.Context(), models.AuditEventFilter{
		EventName: strings.TrimSpace(q.Get("event")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list audit events", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "failed to list audit events")
		return
	}

	if events == nil {
		events = []*models.AuditEvent{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuditEventsResponse{
		Events: events,
		Count:  len(events),
		Limit:  limit,
		Offset: offset,
	})
}
