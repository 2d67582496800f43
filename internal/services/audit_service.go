package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	pkglogger "github.com/BradenHooton/tollgate/pkg/logger"
)

// AuditStore persists audit events
type AuditStore interface {
	Create(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error)
	List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error)
}

// AuditRecorder is what the other guards need from the audit log
type AuditRecorder interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
}

const asyncAuditWriteTimeout = 5 * time.Second

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo   AuditStore
	audit  *pkglogger.AuditLogger
	logger *slog.Logger

	mu     sync.RWMutex
	queue  chan *models.AuditEvent
	closed bool
	wg     sync.WaitGroup
}

// NewAuditService creates a new AuditService. With bufferSize > 0 database
// writes are handed to a background writer; a full buffer falls back to a
// synchronous write so no event is dropped.
func NewAuditService(repo AuditStore, logger *slog.Logger, bufferSize int) *AuditService {
	s := &AuditService{
		repo:   repo,
		audit:  pkglogger.NewAuditLogger(logger),
		logger: logger,
	}

	if bufferSize > 0 {
		s.queue = make(chan *models.AuditEvent, bufferSize)
		s.wg.Add(1)
		go s.drain()
	}

	return s
}

// Record appends ev to the audit trail.
func (s *AuditService) Record(ctx context.Context, ev *models.AuditEvent) error {
	if ev.Severity == "" {
		ev.Severity = models.SeverityLow
	}
	if ev.Metadata == nil {
		ev.Metadata = models.AuditMetadata{}
	}

	// Dual-write: immediate slog output
	s.audit.Log(ctx, toAuditRecord(ev))

	if s.enqueue(ev) {
		return nil
	}

	return s.persist(ctx, ev)
}

// List returns recent audit events for the admin surface
func (s *AuditService) List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	return events, nil
}

// Close flushes buffered events and stops the background writer.
// Events recorded after Close are written synchronously.
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.queue == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AuditService) enqueue(ev *models.AuditEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue == nil || s.closed {
		return false
	}

	select {
	case s.queue <- ev:
		return true
	default:
		s.logger.Warn("audit buffer full, writing synchronously",
			slog.String("event_name", ev.EventName))
		return false
	}
}

func (s *AuditService) persist(ctx context.Context, ev *models.AuditEvent) error {
	stored, err := s.repo.Create(ctx, ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit event",
			slog.String("event_name", ev.EventName),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to persist audit event %s: %w", ev.EventName, err)
	}

	ev.ID = stored.ID
	ev.CreatedAt = stored.CreatedAt
	return nil
}

func (s *AuditService) drain() {
	defer s.wg.Done()

	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncAuditWriteTimeout)
		_ = s.persist(ctx, ev)
		cancel()
	}
}

func toAuditRecord(ev *models.AuditEvent) pkglogger.AuditRecord {
	rec := pkglogger.AuditRecord{
		EventName:  ev.EventName,
		Severity:   string(ev.Severity),
		TargetType: ev.TargetType,
		Metadata:   ev.Metadata,
	}
	if ev.ActorUserID != nil {
		rec.ActorUserID = *ev.ActorUserID
	}
	if ev.ActorIP != nil {
		rec.ActorIP = *ev.ActorIP
	}
	if ev.TargetID != nil {
		rec.TargetID = *ev.TargetID
	}
	return rec
}
