package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay   time.Duration // Minimum time a rejection takes
	RandomDelay time.Duration // Random jitter added on top of BaseDelay
}

// TimingDelay pads credential rejections to a uniform duration so that
// malformed, unknown and revoked keys are indistinguishable by latency
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
// Uses crypto/rand instead of math/rand for security-sensitive operations
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int64(randomValue % uint64(max)), nil
}

// Target returns the padded duration for one rejection
func (td *TimingDelay) Target() time.Duration {
	target := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		if jitter, err := cryptoRandIntn(int64(td.config.RandomDelay)); err == nil {
			target += time.Duration(jitter)
		}
	}
	return target
}

// WaitFrom sleeps until at least Target() has elapsed since start.
// Returns early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}

	remaining := td.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
