package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/cespare/xxhash/v2"
	pkglogger "github.com/BradenHooton/tollgate/pkg/logger"
)

// LoginAttemptStore is the append-only attempt log lockout decisions are derived from
type LoginAttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresSince(ctx context.Context, identifier string, since time.Time) (int, error)
	LatestFailureSince(ctx context.Context, identifier string, since time.Time) (*time.Time, error)
}

// LoginGuardConfig holds configuration for lockout behavior
type LoginGuardConfig struct {
	Policy   models.LockoutPolicy
	FailOpen bool // Precheck admits when storage is unavailable
}

// LoginGuard tracks authentication failures and derives lockout state from them
type LoginGuard struct {
	repo   LoginAttemptStore
	audit  AuditRecorder
	config LoginGuardConfig
	logger *slog.Logger
	now    func() time.Time

	// Serializes failure recording per identifier so the lock transition is
	// audited once per process.
	locks [recordLockStripes]sync.Mutex
}

const recordLockStripes = 64

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(repo LoginAttemptStore, audit AuditRecorder, config LoginGuardConfig, logger *slog.Logger) *LoginGuard {
	return &LoginGuard{
		repo:   repo,
		audit:  audit,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the guard's time source
func (g *LoginGuard) WithClock(now func() time.Time) *LoginGuard {
	g.now = now
	return g
}

// Record appends an attempt. The failure that moves an identifier into the
// locked state is audited. Concurrent failures for one identifier are
// serialized within the process; replicas sharing the attempt log can each
// audit the same transition.
func (g *LoginGuard) Record(ctx context.Context, identifier, sourceIP, userAgent string, success bool) error {
	if identifier == "" {
		return fmt.Errorf("%w: identifier is required", models.ErrBadRequest)
	}

	wasLocked := false
	if !success {
		mu := &g.locks[xxhash.Sum64String(identifier)%recordLockStripes]
		mu.Lock()
		defer mu.Unlock()

		locked, err := g.IsLocked(ctx, identifier)
		if err != nil {
			return err
		}
		wasLocked = locked
	}

	attempt := &models.LoginAttempt{
		Identifier:  identifier,
		SourceIP:    sourceIP,
		UserAgent:   userAgent,
		Success:     success,
		AttemptedAt: g.now(),
	}
	if err := g.repo.RecordAttempt(ctx, attempt); err != nil {
		return err
	}

	if success || wasLocked {
		return nil
	}

	status, err := g.LockoutStatus(ctx, identifier)
	if err != nil {
		return err
	}
	if !status.Locked {
		return nil
	}

	g.logger.WarnContext(ctx, "identifier locked",
		slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
		slog.Int("minutes_until_unlock", status.MinutesUntilUnlock),
	)

	return g.audit.Record(ctx, &models.AuditEvent{
		ActorIP:    models.StrPtr(sourceIP),
		EventName:  models.AuditEventAccountLocked,
		TargetType: models.AuditTargetIdentifier,
		TargetID:   models.StrPtr(pkglogger.SanitizedIdentifier(identifier)),
		Severity:   models.SeverityMedium,
		Metadata: models.AuditMetadata{
			"max_failures":         g.config.Policy.MaxFailures,
			"minutes_until_unlock": status.MinutesUntilUnlock,
		},
	})
}

// IsLocked reports whether identifier is currently locked
func (g *LoginGuard) IsLocked(ctx context.Context, identifier string) (bool, error) {
	status, err := g.LockoutStatus(ctx, identifier)
	if err != nil {
		return false, err
	}
	return status.Locked, nil
}

// LockoutStatus recomputes the lock state of identifier from the attempt log
func (g *LoginGuard) LockoutStatus(ctx context.Context, identifier string) (models.LockoutStatus, error) {
	policy := g.config.Policy
	now := g.now()

	failures, err := g.repo.CountFailuresSince(ctx, identifier, now.Add(-policy.Window))
	if err != nil {
		return models.LockoutStatus{}, err
	}
	if failures < policy.MaxFailures {
		return models.LockoutStatus{}, nil
	}

	latest, err := g.repo.LatestFailureSince(ctx, identifier, now.Add(-policy.LockDuration))
	if err != nil {
		return models.LockoutStatus{}, err
	}
	if latest == nil {
		return models.LockoutStatus{}, nil
	}

	since := now.Sub(*latest)
	if since >= policy.LockDuration {
		return models.LockoutStatus{}, nil
	}

	lockMinutes := int(policy.LockDuration / time.Minute)
	minutesSince := int(math.Floor(since.Minutes()))
	remaining := lockMinutes - minutesSince
	if remaining < 0 {
		remaining = 0
	}

	return models.LockoutStatus{Locked: true, MinutesUntilUnlock: remaining}, nil
}

// Check is LockoutStatus with the guard's failure policy applied. When storage
// is unavailable a fail-closed guard reports the identifier as locked and
// returns ErrStorageUnavailable.
func (g *LoginGuard) Check(ctx context.Context, identifier string) (models.LockoutStatus, error) {
	status, err := g.LockoutStatus(ctx, identifier)
	if err == nil {
		return status, nil
	}

	if g.config.FailOpen {
		g.logger.ErrorContext(ctx, "lockout check failed, admitting", slog.Any("error", err))
		return models.LockoutStatus{}, nil
	}

	g.logger.ErrorContext(ctx, "lockout check failed, denying", slog.Any("error", err))
	return models.LockoutStatus{Locked: true}, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
}

// Precheck is the in-process form of the lockout check for code that embeds
// the guard next to its credential verification; remote callers use Check via
// GET /internal/lockout. It returns ErrAccountLocked for a locked identifier.
// Storage failures deny unless the guard fails open.
func (g *LoginGuard) Precheck(ctx context.Context, identifier string) error {
	status, err := g.Check(ctx, identifier)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAccountLocked, err)
	}

	if status.Locked {
		return models.ErrAccountLocked
	}

	return nil
}
