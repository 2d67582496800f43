// Package ratelimit holds the in-memory admission counters used by the request gate.
//
// Two modes are provided. Limiter enforces a fixed capacity per window for each
// (identity, endpoint class) pair. PathBuckets enforces a token bucket per literal
// (identity, path) pair. Both tables are process-local and lock-striped so that
// unrelated keys never contend.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// Admitter decides whether one more request for identity may enter class
type Admitter interface {
	Admit(identity models.ClientIdentity, class models.EndpointClass) models.RateDecision
}

// Clock returns the current time
type Clock func() time.Time

type settings struct {
	clock  Clock
	shards int
}

// Option configures a Limiter or PathBuckets
type Option func(*settings)

// WithClock replaces time.Now, used by tests to drive windows deterministically
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithShards sets the number of lock stripes
func WithShards(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shards = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{clock: time.Now, shards: defaultShards}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type counter struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

type counterShard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// Limiter is the policy-tiered counter table
type Limiter struct {
	policies map[models.EndpointClass]models.RatePolicy
	shards   []*counterShard
	now      Clock
}

// NewLimiter builds a Limiter. Every endpoint class must have a valid policy.
func NewLimiter(policies map[models.EndpointClass]models.RatePolicy, opts ...Option) (*Limiter, error) {
	owned := make(map[models.EndpointClass]models.RatePolicy, len(policies))
	for _, class := range models.AllEndpointClasses() {
		policy, ok := policies[class]
		if !ok {
			return nil, fmt.Errorf("%w: no policy for endpoint class %q", models.ErrInvalidPolicy, class)
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("endpoint class %q: %w", class, err)
		}
		owned[class] = policy
	}

	s := newSettings(opts)
	shards := make([]*counterShard, s.shards)
	for i := range shards {
		shards[i] = &counterShard{counters: make(map[string]*counter)}
	}

	return &Limiter{
		policies: owned,
		shards:   shards,
		now:      s.clock,
	}, nil
}

// Policy returns the policy applied to class. Unknown classes fall back to general.
func (l *Limiter) Policy(class models.EndpointClass) models.RatePolicy {
	if p, ok := l.policies[class]; ok {
		return p
	}
	return l.policies[models.EndpointClassGeneral]
}

// Admit counts one request against the (identity, class) counter.
//
// The window origin floats: a counter whose window has expired resets on the
// next request, and that request starts the new window.
func (l *Limiter) Admit(identity models.ClientIdentity, class models.EndpointClass) models.RateDecision {
	policy := l.Policy(class)
	now := l.now()
	key := string(class) + "|" + string(identity)

	shard := l.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	c, ok := shard.counters[key]
	if !ok {
		c = &counter{windowStart: now}
		shard.counters[key] = c
	}
	c.lastSeen = now

	if !now.Before(c.windowStart.Add(policy.Window)) {
		c.count = 0
		c.windowStart = now
	}

	decision := models.RateDecision{
		Limit:   policy.Capacity,
		ResetAt: c.windowStart.Add(policy.Window),
	}

	if c.count < policy.Capacity {
		c.count++
		decision.Allowed = true
		decision.Remaining = policy.Capacity - c.count
	}

	return decision
}

// Sweep drops counters not touched within idle and returns how many were removed
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	removed := 0

	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, c := range shard.counters {
			if c.lastSeen.Before(cutoff) {
				delete(shard.counters, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	return removed
}

// Len returns the number of live counters
func (l *Limiter) Len() int {
	n := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		n += len(shard.counters)
		shard.mu.Unlock()
	}
	return n
}

func (l *Limiter) shardFor(key string) *counterShard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}
