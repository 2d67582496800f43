package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// PathAdmitter decides whether one more request for identity may hit path
type PathAdmitter interface {
	Admit(identity models.ClientIdentity, path string) models.RateDecision
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// PathBuckets is the coarse per-path token bucket table
type PathBuckets struct {
	capacity int
	refill   rate.Limit
	shards   []*bucketShard
	now      Clock
}

// NewPathBuckets builds a table where each (identity, path) bucket holds capacity
// tokens and regains refillPerSec tokens per second.
func NewPathBuckets(capacity int, refillPerSec float64, opts ...Option) (*PathBuckets, error) {
	if capacity <= 0 || refillPerSec <= 0 {
		return nil, fmt.Errorf("%w: path bucket capacity=%d refill=%v", models.ErrInvalidPolicy, capacity, refillPerSec)
	}

	s := newSettings(opts)
	shards := make([]*bucketShard, s.shards)
	for i := range shards {
		shards[i] = &bucketShard{buckets: make(map[string]*bucket)}
	}

	return &PathBuckets{
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		shards:   shards,
		now:      s.clock,
	}, nil
}

// Admit takes one token from the (identity, path) bucket
func (b *PathBuckets) Admit(identity models.ClientIdentity, path string) models.RateDecision {
	now := b.now()
	key := string(identity) + "|" + path

	shard := b.shards[xxhash.Sum64String(key)%uint64(len(b.shards))]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	bk, ok := shard.buckets[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.refill, b.capacity)}
		shard.buckets[key] = bk
	}
	bk.lastSeen = now

	allowed := bk.lim.AllowN(now, 1)
	tokens := bk.lim.TokensAt(now)

	decision := models.RateDecision{
		Allowed: allowed,
		Limit:   b.capacity,
	}

	if allowed {
		decision.Remaining = int(math.Max(0, math.Floor(tokens)))
		// Time until the bucket is full again
		decision.ResetAt = now.Add(b.secondsFor(float64(b.capacity) - tokens))
	} else {
		// Time until the next token
		decision.ResetAt = now.Add(b.secondsFor(1 - tokens))
	}

	return decision
}

// Sweep drops buckets not touched within idle and returns how many were removed
func (b *PathBuckets) Sweep(idle time.Duration) int {
	cutoff := b.now().Add(-idle)
	removed := 0

	for _, shard := range b.shards {
		shard.mu.Lock()
		for key, bk := range shard.buckets {
			if bk.lastSeen.Before(cutoff) {
				delete(shard.buckets, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	return removed
}

// Len returns the number of live buckets
func (b *PathBuckets) Len() int {
	n := 0
	for _, shard := range b.shards {
		shard.mu.Lock()
		n += len(shard.buckets)
		shard.mu.Unlock()
	}
	return n
}

func (b *PathBuckets) secondsFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(b.refill) * float64(time.Second))
}
