package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the shared counting backend. Incr must be atomic: under
// concurrent requests the returned counts for one window form a strictly
// increasing sequence with no duplicates, or limits undercount.
type CounterStore interface {
	// Incr bumps the bucket for key, starting a window of the given size
	// on first hit, and returns the post-increment count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count reads the bucket without consuming quota. Missing or expired
	// buckets read as zero.
	Count(ctx context.Context, key string) (int64, error)
}

// MemoryStore keeps buckets in-process. Limits are then per instance, which
// is acceptable for development and tests only.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]*memBucket
	maxBuckets int
}

type memBucket struct {
	count   int64
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:    make(map[string]*memBucket),
		maxBuckets: 10000,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok || !now.Before(bucket.resetAt) {
		s.buckets[key] = &memBucket{count: 1, resetAt: now.Add(window)}
		s.sweepLocked(now)
		return 1, nil
	}

	bucket.count++
	return bucket.count, nil
}

func (s *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok || !now.Before(bucket.resetAt) {
		return 0, nil
	}
	return bucket.count, nil
}

// sweepLocked evicts expired buckets once the map grows past maxBuckets.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if len(s.buckets) <= s.maxBuckets {
		return
	}
	for key, bucket := range s.buckets {
		if !now.Before(bucket.resetAt) {
			delete(s.buckets, key)
		}
	}
}
