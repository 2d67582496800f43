package background

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BradenHooton/tollgate/internal/metrics"
)

// Sweeper is an in-memory counter table that can drop idle entries
type Sweeper interface {
	Sweep(idle time.Duration) int
	Len() int
}

// AttemptPruner removes login attempts that can no longer affect a lockout.
// Only used when an attempt retention is configured.
type AttemptPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type CleanupConfig struct {
	Interval         time.Duration
	IdleRetention    time.Duration
	AttemptRetention time.Duration // 0 keeps every login attempt
}

// CleanupManager periodically sweeps idle rate limit counters and prunes old login attempts
type CleanupManager struct {
	sweepers map[string]Sweeper
	pruner   AttemptPruner
	metrics  *metrics.Metrics
	logger   *slog.Logger
	config   CleanupConfig
	now      func() time.Time
}

// NewCleanupManager creates a new cleanup manager. pruner may be nil.
func NewCleanupManager(
	sweepers map[string]Sweeper,
	pruner AttemptPruner,
	m *metrics.Metrics,
	logger *slog.Logger,
	config CleanupConfig,
) *CleanupManager {
	return &CleanupManager{
		sweepers: sweepers,
		pruner:   pruner,
		metrics:  m,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (cm *CleanupManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager stopped")
			return nil
		}
	}
}

// RunOnce performs a single cleanup pass
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	start := time.Now()
	status := "success"

	names := make([]string, 0, len(cm.sweepers))
	for name := range cm.sweepers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sweeper := cm.sweepers[name]
		removed := sweeper.Sweep(cm.config.IdleRetention)
		live := sweeper.Len()

		cm.metrics.IncrementSwept(name, removed)
		cm.metrics.SetCounterEntries(name, live)

		if removed > 0 {
			cm.logger.Debug("idle rate limit counters swept",
				slog.String("table", name),
				slog.Int("removed", removed),
				slog.Int("live", live))
		}
	}

	if cm.pruner != nil && cm.config.AttemptRetention > 0 {
		pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		rows, err := cm.pruner.DeleteBefore(pruneCtx, cm.now().Add(-cm.config.AttemptRetention))
		if err != nil {
			status = "failure"
			cm.logger.Error("failed to prune login attempts", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("login attempt pruning completed", slog.Int64("rows_deleted", rows))
		}
	}

	cm.metrics.IncrementCleanupRuns(status)
	cm.metrics.ObserveCleanupDuration(time.Since(start).Seconds())
}
