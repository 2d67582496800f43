package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-test-secret-with-at-least-32-chars"

type recorderFunc func(ctx context.Context, ev *models.AuditEvent) error

func (f recorderFunc) Record(ctx context.Context, ev *models.AuditEvent) error { return f(ctx, ev) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func claimsEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := auth.GetUserFromContext(r); claims != nil {
			w.Header().Set("X-User", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestOptionalAuth_InjectsValidClaims(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, time.Minute)
	token, err := tm.GenerateAccessToken("42", models.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	auth.OptionalAuth(tm)(claimsEcho()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Header().Get("X-User"))
}

func TestOptionalAuth_AnonymousPassThrough(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			auth.OptionalAuth(tm)(claimsEcho()).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-User"))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	w := httptest.NewRecorder()
	auth.RequireAuth(claimsEcho()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{UserID: "1", Role: models.RoleAdmin}))
	w = httptest.NewRecorder()
	auth.RequireAuth(claimsEcho()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole_AuditsDenial(t *testing.T) {
	var recorded []*models.AuditEvent
	recorder := recorderFunc(func(ctx context.Context, ev *models.AuditEvent) error {
		recorded = append(recorded, ev)
		return nil
	})
	resolver := auth.NewIdentityResolver(nil)
	mw := auth.RequireRole(models.RoleAdmin, recorder, resolver, discardLogger())

	req := httptest.NewRequest(http.MethodPut, "/admin/kill-switch", nil)
	req.RemoteAddr = "203.0.113.4:5555"
	req = req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{UserID: "7", Role: models.RoleUser}))
	w := httptest.NewRecorder()

	mw(claimsEcho()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	require.Len(t, recorded, 1)
	assert.Equal(t, models.AuditEventAdminAccessDenied, recorded[0].EventName)
	assert.Equal(t, models.SeverityMedium, recorded[0].Severity)
	assert.Equal(t, "7", *recorded[0].ActorUserID)
	assert.Equal(t, "203.0.113.4", *recorded[0].ActorIP)
	assert.Equal(t, "/admin/kill-switch", *recorded[0].TargetID)
}

func TestRequireRole_AllowsRole(t *testing.T) {
	recorder := recorderFunc(func(ctx context.Context, ev *models.AuditEvent) error {
		t.Fatal("unexpected audit event")
		return nil
	})
	mw := auth.RequireRole(models.RoleAdmin, recorder, auth.NewIdentityResolver(nil), discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/api-keys", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{UserID: "1", Role: models.RoleAdmin}))
	w := httptest.NewRecorder()

	mw(claimsEcho()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
