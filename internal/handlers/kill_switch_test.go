package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/handlers"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/stretchr/testify/assert"
)

func newKillSwitchHandler(svc *handlers.MockKillSwitchService) *handlers.KillSwitchHandler {
	return handlers.NewKillSwitchHandler(svc, auth.NewIdentityResolver(nil), discardLogger())
}

func TestKillSwitch_GetStatus(t *testing.T) {
	svc := &handlers.MockKillSwitchService{
		StatusFunc: func(ctx context.Context) (models.KillSwitchStatus, error) {
			return models.KillSwitchStatus{Active: true, Flag: true}, nil
		},
	}
	w := httptest.NewRecorder()
	newKillSwitchHandler(svc).GetStatus(w, httptest.NewRequest(http.MethodGet, "/admin/kill-switch", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":true,"override":false,"flag":true}`, w.Body.String())
}

func TestKillSwitch_GetStatusFlagUnavailable(t *testing.T) {
	svc := &handlers.MockKillSwitchService{
		StatusFunc: func(ctx context.Context) (models.KillSwitchStatus, error) {
			return models.KillSwitchStatus{Active: true}, errors.New("db down")
		},
	}
	w := httptest.NewRecorder()
	newKillSwitchHandler(svc).GetStatus(w, httptest.NewRequest(http.MethodGet, "/admin/kill-switch", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":true,"override":false,"flag":false,"flag_unavailable":true}`, w.Body.String())
}

func TestKillSwitch_SetActive(t *testing.T) {
	var gotValue bool
	var gotActor string
	svc := &handlers.MockKillSwitchService{
		SetActiveFunc: func(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
			gotValue, gotActor = value, actorID
			return models.KillSwitchStatus{Active: value, Override: value}, nil
		},
	}

	req := handlers.WithAdminContext(handlers.NewTestRequest(t, http.MethodPut, "/admin/kill-switch", map[string]bool{"active": true}), "admin-9")
	w := httptest.NewRecorder()
	newKillSwitchHandler(svc).SetActive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotValue)
	assert.Equal(t, "admin-9", gotActor)
	assert.JSONEq(t, `{"active":true,"override":true,"flag":false}`, w.Body.String())
}

func TestKillSwitch_SetActiveReportsFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"flag unreadable", fmt.Errorf("%w: db down", models.ErrStorageUnavailable),
			`{"active":true,"override":true,"flag":false,"flag_unavailable":true}`},
		{"audit write failed", fmt.Errorf("%w: db down", models.ErrAuditWriteFailed),
			`{"active":true,"override":true,"flag":false,"audit_unavailable":true}`},
		{"both", errors.Join(models.ErrStorageUnavailable, models.ErrAuditWriteFailed),
			`{"active":true,"override":true,"flag":false,"flag_unavailable":true,"audit_unavailable":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockKillSwitchService{
				SetActiveFunc: func(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
					return models.KillSwitchStatus{Active: true, Override: true}, tt.err
				},
			}
			req := handlers.WithAdminContext(handlers.NewTestRequest(t, http.MethodPut, "/admin/kill-switch", map[string]bool{"active": true}), "admin-9")
			w := httptest.NewRecorder()
			newKillSwitchHandler(svc).SetActive(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestKillSwitch_SetActiveRequiresField(t *testing.T) {
	req := handlers.WithAdminContext(handlers.NewTestRequest(t, http.MethodPut, "/admin/kill-switch", map[string]string{}), "admin-9")
	w := httptest.NewRecorder()
	newKillSwitchHandler(&handlers.MockKillSwitchService{}).SetActive(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestKillSwitch_SetFlag(t *testing.T) {
	w := httptest.NewRecorder()
	req := handlers.WithAdminContext(handlers.NewTestRequest(t, http.MethodPut, "/admin/kill-switch/flag", map[string]bool{"enabled": true}), "admin-9")
	newKillSwitchHandler(&handlers.MockKillSwitchService{}).SetFlag(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":true,"override":false,"flag":true}`, w.Body.String())
}

func TestKillSwitch_SetFlagFailure_Returns503(t *testing.T) {
	svc := &handlers.MockKillSwitchService{
		SetFlagFunc: func(ctx context.Context, enabled bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
			return models.KillSwitchStatus{}, errors.New("db down")
		},
	}
	w := httptest.NewRecorder()
	req := handlers.WithAdminContext(handlers.NewTestRequest(t, http.MethodPut, "/admin/kill-switch/flag", map[string]bool{"enabled": false}), "admin-9")
	newKillSwitchHandler(svc).SetFlag(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, string(models.DenyCheckUnavailable))
}
