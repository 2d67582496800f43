package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFlagKey = "privacy_kill_switch"

func newKillSwitch(flags *services.MockFlagStore, audit *services.MockAuditRecorder, clock *testClock) *services.KillSwitch {
	cfg := services.KillSwitchConfig{FlagKey: testFlagKey, FlagTTL: 5 * time.Second}
	return services.NewKillSwitch(flags, audit, cfg, discardLogger()).WithClock(clock.Now)
}

func TestKillSwitch_DefaultsInactive(t *testing.T) {
	ks := newKillSwitch(&services.MockFlagStore{}, &services.MockAuditRecorder{}, newTestClock())

	active, err := ks.IsActive(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestKillSwitch_SetActiveAuditsTransitions(t *testing.T) {
	ctx := context.Background()
	audit := &services.MockAuditRecorder{}
	ks := newKillSwitch(&services.MockFlagStore{}, audit, newTestClock())

	status, err := ks.SetActive(ctx, true, "1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.KillSwitchStatus{Active: true, Override: true}, status)

	active, err := ks.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	// No transition, no event
	_, err = ks.SetActive(ctx, true, "1", "10.0.0.1")
	require.NoError(t, err)

	_, err = ks.SetActive(ctx, false, "1", "10.0.0.1")
	require.NoError(t, err)

	events := audit.Named(models.AuditEventKillSwitchToggled)
	require.Len(t, events, 2)
	assert.Equal(t, models.SeverityHigh, events[0].Severity)
	assert.Equal(t, false, events[0].Metadata["old"])
	assert.Equal(t, true, events[0].Metadata["new"])
	assert.Equal(t, true, events[1].Metadata["old"])
	assert.Equal(t, false, events[1].Metadata["new"])
}

func TestKillSwitch_FlagOrOverride(t *testing.T) {
	ctx := context.Background()
	audit := &services.MockAuditRecorder{}
	flags := &services.MockFlagStore{}
	require.NoError(t, flags.Set(ctx, testFlagKey, true, "ops"))
	ks := newKillSwitch(flags, audit, newTestClock())

	active, err := ks.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active, "flag alone activates the switch")

	// Effective state does not change when the override joins the flag
	status, err := ks.SetActive(ctx, true, "1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.KillSwitchStatus{Active: true, Override: true, Flag: true}, status)
	assert.Empty(t, audit.Named(models.AuditEventKillSwitchToggled))
}

func TestKillSwitch_FlagReadsAreCached(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	flags := &services.MockFlagStore{}
	ks := newKillSwitch(flags, &services.MockAuditRecorder{}, clock)

	for i := 0; i < 5; i++ {
		_, err := ks.IsActive(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, flags.GetCount())

	clock.Advance(5 * time.Second)
	_, err := ks.IsActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flags.GetCount())
}

func TestKillSwitch_SharedFlagReadSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	flags := &services.MockFlagStore{
		GetFunc: func(ctx context.Context, key string) (*models.FeatureFlag, error) {
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, models.ErrNotFound
		},
	}
	ks := newKillSwitch(flags, &services.MockAuditRecorder{}, newTestClock())

	type result struct {
		active bool
		err    error
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan result, 1)
	go func() {
		active, err := ks.IsActive(ctxA)
		resA <- result{active, err}
	}()
	require.Eventually(t, func() bool { return flags.GetCount() == 1 }, time.Second, time.Millisecond)

	resB := make(chan result, 1)
	go func() {
		active, err := ks.IsActive(context.Background())
		resB <- result{active, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	a := <-resA
	assert.ErrorIs(t, a.err, context.Canceled)
	assert.True(t, a.active, "a caller that stops waiting fails closed")

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.False(t, b.active)
	assert.Equal(t, 1, flags.GetCount(), "both callers share one read")
}

func TestKillSwitch_FlagFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("db down")
	flags := &services.MockFlagStore{
		GetFunc: func(ctx context.Context, key string) (*models.FeatureFlag, error) {
			return nil, dbErr
		},
	}
	ks := newKillSwitch(flags, &services.MockAuditRecorder{}, newTestClock())

	active, err := ks.IsActive(ctx)
	assert.ErrorIs(t, err, dbErr)
	assert.True(t, active)

	status, err := ks.Status(ctx)
	assert.Error(t, err)
	assert.True(t, status.Active)
}

func TestKillSwitch_SetActiveReportsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("flag unreadable", func(t *testing.T) {
		flags := &services.MockFlagStore{
			GetFunc: func(ctx context.Context, key string) (*models.FeatureFlag, error) {
				return nil, errors.New("db down")
			},
		}
		ks := newKillSwitch(flags, &services.MockAuditRecorder{}, newTestClock())

		status, err := ks.SetActive(ctx, true, "1", "10.0.0.1")
		assert.ErrorIs(t, err, models.ErrStorageUnavailable)
		assert.NotErrorIs(t, err, models.ErrAuditWriteFailed)
		assert.True(t, status.Active)
		assert.True(t, status.Override)

		// Repeating the same value still reports the unreadable flag
		_, err = ks.SetActive(ctx, true, "1", "10.0.0.1")
		assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	})

	t.Run("audit write failed", func(t *testing.T) {
		audit := &services.MockAuditRecorder{
			RecordFunc: func(ctx context.Context, ev *models.AuditEvent) error {
				return errors.New("audit store down")
			},
		}
		ks := newKillSwitch(&services.MockFlagStore{}, audit, newTestClock())

		status, err := ks.SetActive(ctx, true, "1", "10.0.0.1")
		assert.ErrorIs(t, err, models.ErrAuditWriteFailed)
		assert.NotErrorIs(t, err, models.ErrStorageUnavailable)
		assert.True(t, status.Active, "the override is applied regardless")

		active, err := ks.IsActive(ctx)
		require.NoError(t, err)
		assert.True(t, active)
	})
}

func TestKillSwitch_SetFlag(t *testing.T) {
	ctx := context.Background()
	audit := &services.MockAuditRecorder{}
	flags := &services.MockFlagStore{}
	ks := newKillSwitch(flags, audit, newTestClock())

	_, err := ks.IsActive(ctx)
	require.NoError(t, err)

	status, err := ks.SetFlag(ctx, true, "1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.KillSwitchStatus{Active: true, Flag: true}, status)

	// The write refreshes the cached value immediately
	active, err := ks.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	events := audit.Named(models.AuditEventKillSwitchFlagSet)
	require.Len(t, events, 1)
	assert.Equal(t, testFlagKey, *events[0].TargetID)
	assert.Equal(t, false, events[0].Metadata["previous"])
}
