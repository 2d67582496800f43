package ratelimit_test

import (
	"testing"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_LongestPrefixWins(t *testing.T) {
	c, err := ratelimit.NewClassifier(map[string]models.EndpointClass{
		"/auth":                models.EndpointClassAuth,
		"/auth/password-reset": models.EndpointClassPasswordReset,
		"/uploads":             models.EndpointClassUpload,
		"/admin":               models.EndpointClassAdmin,
	})
	require.NoError(t, err)

	tests := []struct {
		path string
		want models.EndpointClass
	}{
		{"/auth/login", models.EndpointClassAuth},
		{"/auth/password-reset/confirm", models.EndpointClassPasswordReset},
		{"/uploads", models.EndpointClassUpload},
		{"/admin/api-keys", models.EndpointClassAdmin},
		{"/authors", models.EndpointClassGeneral},
		{"/orders/7", models.EndpointClassGeneral},
		{"/", models.EndpointClassGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.path))
		})
	}
}

func TestNewClassifier_RejectsBadRoutes(t *testing.T) {
	_, err := ratelimit.NewClassifier(map[string]models.EndpointClass{"auth": models.EndpointClassAuth})
	assert.Error(t, err)

	_, err = ratelimit.NewClassifier(map[string]models.EndpointClass{"/x": models.EndpointClass("nope")})
	assert.Error(t, err)
}
