package models_test

import (
	"testing"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointClass_Known(t *testing.T) {
	for _, c := range models.AllEndpointClasses() {
		parsed, err := models.ParseEndpointClass(" " + string(c) + " ")
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}

func TestParseEndpointClass_CaseInsensitive(t *testing.T) {
	parsed, err := models.ParseEndpointClass("PASSWORD_RESET")
	require.NoError(t, err)
	assert.Equal(t, models.EndpointClassPasswordReset, parsed)
}

func TestParseEndpointClass_Unknown(t *testing.T) {
	_, err := models.ParseEndpointClass("billing")
	assert.Error(t, err)
	assert.False(t, models.EndpointClass("billing").IsValid())
}

func TestRatePolicy_Validate(t *testing.T) {
	assert.NoError(t, models.RatePolicy{Capacity: 5, Window: time.Minute}.Validate())
	assert.ErrorIs(t, models.RatePolicy{Capacity: 0, Window: time.Minute}.Validate(), models.ErrInvalidPolicy)
	assert.ErrorIs(t, models.RatePolicy{Capacity: 5}.Validate(), models.ErrInvalidPolicy)
}

func TestRateDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d := models.RateDecision{Allowed: false, ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2, d.RetryAfter(now), "partial seconds round up")

	d = models.RateDecision{Allowed: false, ResetAt: now}
	assert.Equal(t, 1, d.RetryAfter(now), "denied decisions report at least one second")

	d = models.RateDecision{Allowed: true, ResetAt: now.Add(-time.Second)}
	assert.Equal(t, 0, d.RetryAfter(now))
}

func TestClientIdentity(t *testing.T) {
	assert.Equal(t, models.ClientIdentity("user:42"), models.UserIdentity("42"))
	assert.Equal(t, models.ClientIdentity("ip:1.2.3.4"), models.IPIdentity("1.2.3.4"))
	assert.True(t, models.UserIdentity("42").IsAuthenticated())
	assert.False(t, models.IPIdentity("1.2.3.4").IsAuthenticated())
}

func TestParseRole(t *testing.T) {
	r, err := models.ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, r)

	_, err = models.ParseRole("Admin")
	assert.Error(t, err, "roles are case sensitive")
	_, err = models.ParseRole("superuser")
	assert.Error(t, err)
}
