// Package replayset implements the proposal-token replay set (spec
// §4.9, §5): a time-partitioned record of seen jti values with
// automatic eviction once an entry's record outlives the maximum token
// TTL. Two backends are provided: an in-memory map partitioned into
// fixed-width time buckets, and a Redis-backed one for multi-instance
// deployments, grounded on the teacher's self-expiring Redis state
// idiom in kernel.RedisLimiterStore (HMSET + EXPIRE).
package replayset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Set records proposal-token jti values and rejects replays.
//
// MarkIfAbsent reports whether jti was newly recorded (true) or had
// already been seen within the replay window (false), atomically — it
// is the commit point for Approve's idempotence guarantee (spec §4.9:
// "two approve(token) calls produce at most one provision call").
type Set interface {
	MarkIfAbsent(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// InMemory is a time-partitioned in-memory Set: entries are bucketed by
// their arrival time into fixed-width windows, and buckets older than
// the longest-lived entry's TTL are dropped wholesale on access, giving
// O(1) amortized eviction without per-entry timers.
type InMemory struct {
	mu          sync.Mutex
	bucketWidth time.Duration
	buckets     map[int64]map[string]struct{}
	maxTTL      time.Duration
	now         func() time.Time
}

// NewInMemory returns an empty in-memory replay set partitioned into
// bucketWidth-sized time windows (a smaller width evicts more promptly
// at the cost of more buckets retained at once).
func NewInMemory(bucketWidth time.Duration) *InMemory {
	return &InMemory{
		bucketWidth: bucketWidth,
		buckets:     make(map[int64]map[string]struct{}),
		now:         time.Now,
	}
}

func (s *InMemory) bucketKey(t time.Time) int64 {
	return t.UnixNano() / s.bucketWidth.Nanoseconds()
}

// MarkIfAbsent records jti in the current bucket if it has not been seen
// in any live bucket (one whose window is within ttl of now), evicting
// expired buckets first.
func (s *InMemory) MarkIfAbsent(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ttl > s.maxTTL {
		s.maxTTL = ttl
	}
	oldestLive := s.bucketKey(now.Add(-s.maxTTL))
	for k := range s.buckets {
		if k < oldestLive {
			delete(s.buckets, k)
		}
	}

	for _, bucket := range s.buckets {
		if _, seen := bucket[jti]; seen {
			return false, nil
		}
	}

	key := s.bucketKey(now)
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = make(map[string]struct{})
		s.buckets[key] = bucket
	}
	bucket[jti] = struct{}{}
	return true, nil
}

// Redis is a Set backed by Redis, suited to multi-instance deployments
// sharing one replay horizon. Recording is a single SETNX-with-expiry
// call so two instances racing on the same jti still converge on
// exactly one winner.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a replay set backed by client, namespacing keys under
// prefix (e.g. "jitbroker:replay:").
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// MarkIfAbsent issues SET key val NX EX ttl, which atomically records
// jti only if absent and lets Redis evict it once ttl elapses.
func (s *Redis) MarkIfAbsent(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s", s.prefix, jti)
	ok, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replayset: redis SETNX: %w", err)
	}
	return ok, nil
}
