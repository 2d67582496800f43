package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestAuditService_RecordPersists(t *testing.T) {
	var stored []*models.AuditEvent
	repo := &services.MockAuditStore{
		CreateFunc: func(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error) {
			stored = append(stored, ev)
			out := *ev
			return &out, nil
		},
	}

	svc := services.NewAuditService(repo, discardLogger(), 0)
	err := svc.Record(context.Background(), &models.AuditEvent{
		EventName:  models.AuditEventAPIKeyCreated,
		TargetType: models.AuditTargetAPIKey,
		Severity:   models.SeverityHigh,
	})

	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.SeverityHigh, stored[0].Severity)
	assert.NotNil(t, stored[0].Metadata, "metadata defaults to an empty object")
}

func TestAuditService_DefaultsSeverityToLow(t *testing.T) {
	repo := &services.MockAuditStore{}
	svc := services.NewAuditService(repo, discardLogger(), 0)

	ev := &models.AuditEvent{EventName: models.AuditEventKillSwitchBlocked, TargetType: models.AuditTargetRoute}
	require.NoError(t, svc.Record(context.Background(), ev))
	assert.Equal(t, models.SeverityLow, ev.Severity)
}

func TestAuditService_StorageErrorPropagates(t *testing.T) {
	dbErr := errors.New("connection refused")
	repo := &services.MockAuditStore{
		CreateFunc: func(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error) {
			return nil, dbErr
		},
	}

	svc := services.NewAuditService(repo, discardLogger(), 0)
	err := svc.Record(context.Background(), &models.AuditEvent{EventName: "x", TargetType: "y"})

	assert.ErrorIs(t, err, dbErr)
}

func TestAuditService_BufferedWritesFlushOnClose(t *testing.T) {
	var mu sync.Mutex
	count := 0
	repo := &services.MockAuditStore{
		CreateFunc: func(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error) {
			mu.Lock()
			count++
			mu.Unlock()
			out := *ev
			return &out, nil
		},
	}

	svc := services.NewAuditService(repo, discardLogger(), 2)
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.Record(context.Background(), &models.AuditEvent{EventName: "e", TargetType: "t"}))
	}
	svc.Close()

	// Events past the buffer are written synchronously, none are dropped
	assert.Equal(t, 10, count)

	require.NoError(t, svc.Record(context.Background(), &models.AuditEvent{EventName: "late", TargetType: "t"}))
	assert.Equal(t, 11, count)
	svc.Close()
}

func TestAuditService_ListClampsPagination(t *testing.T) {
	var got models.AuditEventFilter
	repo := &services.MockAuditStore{
		ListFunc: func(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error) {
			got = filter
			return []*models.AuditEvent{}, nil
		},
	}

	svc := services.NewAuditService(repo, discardLogger(), 0)
	_, err := svc.List(context.Background(), models.AuditEventFilter{EventName: "account_locked", Limit: 1000, Offset: -5})

	require.NoError(t, err)
	assert.Equal(t, 50, got.Limit)
	assert.Equal(t, 0, got.Offset)
	assert.Equal(t, "account_locked", got.EventName)
}
