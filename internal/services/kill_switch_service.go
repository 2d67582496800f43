package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"golang.org/x/sync/singleflight"
)

// FlagStore persists feature flags
type FlagStore interface {
	Get(ctx context.Context, key string) (*models.FeatureFlag, error)
	Set(ctx context.Context, key string, enabled bool, updatedBy string) error
}

const flagReadTimeout = 2 * time.Second

// KillSwitchConfig holds configuration for the kill switch
type KillSwitchConfig struct {
	FlagKey string
	FlagTTL time.Duration // How long a flag read is reused
}

// KillSwitch is the global read-only override. The effective state is the
// in-process override OR the persisted flag.
type KillSwitch struct {
	flags  FlagStore
	audit  AuditRecorder
	config KillSwitchConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	override bool

	cacheMu   sync.RWMutex
	cached    bool
	cachedAt  time.Time
	haveCache bool
	group     singleflight.Group
}

// NewKillSwitch creates a new KillSwitch with the override cleared
func NewKillSwitch(flags FlagStore, audit AuditRecorder, config KillSwitchConfig, logger *slog.Logger) *KillSwitch {
	return &KillSwitch{
		flags:  flags,
		audit:  audit,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for flag caching
func (k *KillSwitch) WithClock(now func() time.Time) *KillSwitch {
	k.now = now
	return k
}

// IsActive returns the effective state. When the flag cannot be read the
// switch reports active along with the error.
func (k *KillSwitch) IsActive(ctx context.Context) (bool, error) {
	k.mu.Lock()
	override := k.override
	k.mu.Unlock()

	if override {
		return true, nil
	}

	flag, err := k.flag(ctx)
	if err != nil {
		return true, err
	}

	return flag, nil
}

// Status reports both sources for the admin surface
func (k *KillSwitch) Status(ctx context.Context) (models.KillSwitchStatus, error) {
	k.mu.Lock()
	override := k.override
	k.mu.Unlock()

	flag, err := k.flag(ctx)
	if err != nil {
		return models.KillSwitchStatus{Active: true, Override: override}, err
	}

	return models.KillSwitchStatus{Active: override || flag, Override: override, Flag: flag}, nil
}

// SetActive sets the override. A change of the effective state is audited
// with the before and after values. The override is applied even when the
// returned error reports an unreadable flag (ErrStorageUnavailable) or a
// failed audit write (ErrAuditWriteFailed).
func (k *KillSwitch) SetActive(ctx context.Context, value bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
	flag, flagErr := k.flag(ctx)
	if flagErr != nil {
		k.logger.WarnContext(ctx, "kill switch flag unavailable while toggling override", slog.Any("error", flagErr))
	}

	k.mu.Lock()
	prevOverride := k.override
	k.override = value
	k.mu.Unlock()

	prev := prevOverride || flag
	status := models.KillSwitchStatus{Active: value || flag, Override: value, Flag: flag}

	if flagErr != nil {
		// Unknown flag: the switch is treated as active
		status.Active = true
		if prevOverride == value {
			return status, flagErr
		}
	} else if prev == status.Active {
		return status, nil
	}

	k.logger.WarnContext(ctx, "kill switch toggled",
		slog.Bool("old", prev),
		slog.Bool("new", status.Active),
		slog.String("actor_user_id", actorID),
	)

	err := k.audit.Record(ctx, &models.AuditEvent{
		ActorUserID: models.StrPtr(actorID),
		ActorIP:     models.StrPtr(actorIP),
		EventName:   models.AuditEventKillSwitchToggled,
		TargetType:  models.AuditTargetKillSwitch,
		Severity:    models.SeverityHigh,
		Metadata: models.AuditMetadata{
			"old":              prev,
			"new":              status.Active,
			"override":         value,
			"flag":             flag,
			"flag_unavailable": flagErr != nil,
		},
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", models.ErrAuditWriteFailed, err)
	}

	return status, errors.Join(flagErr, err)
}

// SetFlag persists the underlying feature flag and audits the change
func (k *KillSwitch) SetFlag(ctx context.Context, enabled bool, actorID, actorIP string) (models.KillSwitchStatus, error) {
	previous, prevErr := k.readFlag(ctx)

	if err := k.flags.Set(ctx, k.config.FlagKey, enabled, actorID); err != nil {
		return models.KillSwitchStatus{}, err
	}
	k.store(enabled)

	metadata := models.AuditMetadata{"key": k.config.FlagKey, "enabled": enabled}
	if prevErr == nil {
		metadata["previous"] = previous
	}

	err := k.audit.Record(ctx, &models.AuditEvent{
		ActorUserID: models.StrPtr(actorID),
		ActorIP:     models.StrPtr(actorIP),
		EventName:   models.AuditEventKillSwitchFlagSet,
		TargetType:  models.AuditTargetKillSwitch,
		TargetID:    models.StrPtr(k.config.FlagKey),
		Severity:    models.SeverityHigh,
		Metadata:    metadata,
	})
	if err != nil {
		return models.KillSwitchStatus{}, err
	}

	return k.Status(ctx)
}

// flag returns the persisted flag, reusing a recent read. Concurrent
// refreshes share one query.
func (k *KillSwitch) flag(ctx context.Context) (bool, error) {
	k.cacheMu.RLock()
	if k.haveCache && k.now().Sub(k.cachedAt) < k.config.FlagTTL {
		v := k.cached
		k.cacheMu.RUnlock()
		return v, nil
	}
	k.cacheMu.RUnlock()

	// The shared read outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := k.group.DoChan(k.config.FlagKey, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flagReadTimeout)
		defer cancel()

		enabled, err := k.readFlag(readCtx)
		if err != nil {
			return false, err
		}
		k.store(enabled)
		return enabled, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (k *KillSwitch) readFlag(ctx context.Context) (bool, error) {
	flag, err := k.flags.Get(ctx, k.config.FlagKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to read kill switch flag: %w", models.ErrStorageUnavailable, err)
	}
	return flag.Enabled, nil
}

func (k *KillSwitch) store(enabled bool) {
	k.cacheMu.Lock()
	k.cached = enabled
	k.cachedAt = k.now()
	k.haveCache = true
	k.cacheMu.Unlock()
}
