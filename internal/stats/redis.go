// Package stats mirrors gate decisions into Redis hashes so operators can
// inspect allow/deny counts across instances.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is one gate outcome
type Decision struct {
	Stage   string
	Allowed bool
	Reason  string
	Method  string
	Path    string
	At      time.Time
}

// Sink accepts gate decisions
type Sink interface {
	Record(ctx context.Context, d Decision) error
}

// RedisSink writes decision counters with a pipelined HINCRBY per request.
// A nil *RedisSink is a no-op.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisSinkOption func(*RedisSink)

func WithPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL bounds how long per-minute buckets are kept. Totals never expire.
func WithTTL(d time.Duration) RedisSinkOption {
	return func(s *RedisSink) { s.ttl = d }
}

func NewRedisSink(rdb *redis.Client, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		rdb:    rdb,
		prefix: "tollgate:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys returns the hash keys a decision at the given time touches
func (s *RedisSink) Keys(at time.Time) (total, minute, route string) {
	return s.prefix + ":total",
		fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")),
		s.prefix + ":route"
}

func (s *RedisSink) Record(ctx context.Context, d Decision) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := d.At
	if at.IsZero() {
		at = time.Now()
	}

	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	field := d.Stage + ":" + outcome
	if !d.Allowed && d.Reason != "" {
		field += ":" + d.Reason
	}

	totalKey, minuteKey, routeKey := s.Keys(at)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if route := strings.TrimSpace(d.Method + " " + d.Path); route != "" {
		pipe.HIncrBy(ctx, routeKey, route+":"+outcome, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals reads the cumulative counters
func (s *RedisSink) Totals(ctx context.Context) (map[string]string, error) {
	if s == nil || s.rdb == nil {
		return map[string]string{}, nil
	}
	total, _, _ := s.Keys(time.Now())
	return s.rdb.HGetAll(ctx, total).Result()
}
