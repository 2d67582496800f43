package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/google/uuid"
)

// MockAuditStore implements AuditStore for testing
type MockAuditStore struct {
	CreateFunc func(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error)
	ListFunc   func(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error)
}

func (m *MockAuditStore) Create(ctx context.Context, ev *models.AuditEvent) (*models.AuditEvent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ev)
	}
	stored := *ev
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	return &stored, nil
}

func (m *MockAuditStore) List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*models.AuditEvent{}, nil
}

// MockAuditRecorder captures recorded events
type MockAuditRecorder struct {
	RecordFunc func(ctx context.Context, ev *models.AuditEvent) error

	mu     sync.Mutex
	Events []*models.AuditEvent
}

func (m *MockAuditRecorder) Record(ctx context.Context, ev *models.AuditEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, ev)
	m.mu.Unlock()

	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, ev)
	}
	return nil
}

// Named returns the recorded events with the given name
func (m *MockAuditRecorder) Named(name string) []*models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.AuditEvent
	for _, ev := range m.Events {
		if ev.EventName == name {
			out = append(out, ev)
		}
	}
	return out
}

// MockLoginAttemptRepository keeps attempts in memory
type MockLoginAttemptRepository struct {
	Err error // Returned by every call when set

	mu       sync.Mutex
	Attempts []*models.LoginAttempt
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

func (m *MockLoginAttemptRepository) CountFailuresSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, a := range m.Attempts {
		if a.Identifier == identifier && !a.Success && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockLoginAttemptRepository) LatestFailureSince(ctx context.Context, identifier string, since time.Time) (*time.Time, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *time.Time
	for _, a := range m.Attempts {
		if a.Identifier != identifier || a.Success || a.AttemptedAt.Before(since) {
			continue
		}
		if latest == nil || a.AttemptedAt.After(*latest) {
			at := a.AttemptedAt
			latest = &at
		}
	}
	return latest, nil
}

// MockAPIKeyRepository implements repositories.APIKeyRepository for testing
type MockAPIKeyRepository struct {
	CreateFunc         func(ctx context.Context, apiKey *models.APIKey) error
	GetByHashFunc      func(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetByIDFunc        func(ctx context.Context, id string) (*models.APIKey, error)
	ListActiveFunc     func(ctx context.Context) ([]*models.APIKey, error)
	UpdateLastUsedFunc func(ctx context.Context, id string, at time.Time) error
	RevokeFunc         func(ctx context.Context, id string, at time.Time) (bool, error)
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, apiKey)
	}
	return nil
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, keyHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAPIKeyRepository) ListActive(ctx context.Context) ([]*models.APIKey, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return []*models.APIKey{}, nil
}

func (m *MockAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastUsedFunc != nil {
		return m.UpdateLastUsedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id, at)
	}
	return false, models.ErrNotFound
}

// NewInMemoryAPIKeyRepository wires a MockAPIKeyRepository to a map
func NewInMemoryAPIKeyRepository() *MockAPIKeyRepository {
	var mu sync.Mutex
	keys := make(map[string]*models.APIKey)

	return &MockAPIKeyRepository{
		CreateFunc: func(ctx context.Context, apiKey *models.APIKey) error {
			mu.Lock()
			defer mu.Unlock()
			stored := *apiKey
			keys[apiKey.ID] = &stored
			return nil
		},
		GetByHashFunc: func(ctx context.Context, keyHash string) (*models.APIKey, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, k := range keys {
				if k.KeyHash == keyHash && k.IsActive() {
					found := *k
					return &found, nil
				}
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.APIKey, error) {
			mu.Lock()
			defer mu.Unlock()
			if k, ok := keys[id]; ok {
				found := *k
				return &found, nil
			}
			return nil, models.ErrNotFound
		},
		ListActiveFunc: func(ctx context.Context) ([]*models.APIKey, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make([]*models.APIKey, 0, len(keys))
			for _, k := range keys {
				if k.IsActive() {
					found := *k
					out = append(out, &found)
				}
			}
			return out, nil
		},
		UpdateLastUsedFunc: func(ctx context.Context, id string, at time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			if k, ok := keys[id]; ok {
				k.LastUsedAt = &at
			}
			return nil
		},
		RevokeFunc: func(ctx context.Context, id string, at time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			k, ok := keys[id]
			if !ok {
				return false, models.ErrNotFound
			}
			if k.RevokedAt != nil {
				return false, nil
			}
			k.RevokedAt = &at
			return true, nil
		},
	}
}

// MockFlagStore implements FlagStore for testing
type MockFlagStore struct {
	GetFunc func(ctx context.Context, key string) (*models.FeatureFlag, error)
	SetFunc func(ctx context.Context, key string, enabled bool, updatedBy string) error

	mu    sync.Mutex
	Gets  int
	flags map[string]bool
}

func (m *MockFlagStore) Get(ctx context.Context, key string) (*models.FeatureFlag, error) {
	m.mu.Lock()
	m.Gets++
	enabled, ok := m.flags[key]
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.FeatureFlag{Key: key, Enabled: enabled, UpdatedAt: time.Now()}, nil
}

func (m *MockFlagStore) Set(ctx context.Context, key string, enabled bool, updatedBy string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, enabled, updatedBy)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags == nil {
		m.flags = make(map[string]bool)
	}
	m.flags[key] = enabled
	return nil
}

// GetCount returns how many times Get was called
func (m *MockFlagStore) GetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gets
}
