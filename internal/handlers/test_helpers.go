package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:51000"
	return req
}

// WithAdminContext adds admin claims to the request context
func WithAdminContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Role:   models.RoleAdmin,
		Type:   "access",
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAPIKeyService implements APIKeyServiceInterface for testing
type MockAPIKeyService struct {
	CreateKeyFunc  func(ctx context.Context, name, actorID, actorIP string) (*models.GeneratedAPIKey, error)
	ListActiveFunc func(ctx context.Context) ([]*models.APIKey, error)
	RevokeFunc     func(ctx context.Context, id, actorID, actorIP string) (bool, error)
}

func (m *MockAPIKeyService) CreateKey(ctx context.Context, name, actorID, actorIP string) (*models.GeneratedAPIKey, error) {
	if m.CreateKeyFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateKeyFunc(ctx, name, actorID, actorIP)
}

func (m *MockAPIKeyService) ListActive(ctx context.Context) ([]*models.APIKey, error) {
	if m.ListActiveFunc == nil {
		return []*models.APIKey{}, nil
	}
	return m.ListActiveFunc(ctx)
}

func (m *MockAPIKeyService) Revoke(ctx context.Context, id, actorID, actorIP string) (bool, error) {
	if m.RevokeFunc == nil {
		return false, models.ErrNotFound
	}
	return m.RevokeFunc(ctx, id, actorID, actorIP)
}

// MockKillSwitchService implements KillSwitchService for testing
type MockKillSwitchService struct {
	StatusFunc    func(ctx context.Context) (models.KillSwitchStatus, error)
	SetActiveFunc func(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error)
	SetFlagFunc   func(ctx context.Context, enabled bool, actorID, actorIP string) (models.KillSwitchStatus, error)
}

func (m *MockKillSwitchService) Status(ctx context.Context) (models.KillSwitchStatus, error) {
	if m.StatusFunc == nil {
		return models.KillSwitchStatus{}, nil
	}
	return m.StatusFunc(ctx)
}

func (m *MockKillSwitchService) SetActive(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
	if m.SetActiveFunc == nil {
		return models.KillSwitchStatus{Active: value, Override: value}, nil
	}
	return m.SetActiveFunc(ctx, value, actorID, actorIP)
}

func (m *MockKillSwitchService) SetFlag(ctx context.Context, enabled bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
	if m.SetFlagFunc == nil {
		return models.KillSwitchStatus{Active: enabled, Flag: enabled}, nil
	}
	return m.SetFlagFunc(ctx, enabled, actorID, actorIP)
}

// MockAuditLister implements AuditLister for testing
type MockAuditLister struct {
	ListFunc func(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error)
}

func (m *MockAuditLister) List(ctx context.Context, filter models.AuditEventFilter) ([]*models.AuditEvent, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx, filter)
}

// MockLoginGuardService implements LoginGuardService for testing
type MockLoginGuardService struct {
	RecordFunc func(ctx context.Context, identifier, sourceIP, userAgent string, success bool) error
	CheckFunc  func(ctx context.Context, identifier string) (models.LockoutStatus, error)
}

func (m *MockLoginGuardService) Record(ctx context.Context, identifier, sourceIP, userAgent string, success bool) error {
	if m.RecordFunc == nil {
		return nil
	}
	return m.RecordFunc(ctx, identifier, sourceIP, userAgent, success)
}

func (m *MockLoginGuardService) Check(ctx context.Context, identifier string) (models.LockoutStatus, error) {
	if m.CheckFunc == nil {
		return models.LockoutStatus{}, nil
	}
	return m.CheckFunc(ctx, identifier)
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	Err error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	return m.Err
}
