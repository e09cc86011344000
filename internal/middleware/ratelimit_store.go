package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/get2knowme/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local rate limiting. It is concurrency-safe.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
	tick  *time.Ticker
	done  chan struct{}
	once  sync.Once
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store that prunes expired windows every minute.
func NewMemoryRateStore() *MemoryRateStore {
	return newMemoryRateStore(time.Now, time.Minute)
}

func newMemoryRateStore(clock func() time.Time, cleanupEvery time.Duration) *MemoryRateStore {
	store := &MemoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: clock,
		tick:  time.NewTicker(cleanupEvery),
		done:  make(chan struct{}),
	}

	go store.cleanupLoop()
	return store
}

func (s *MemoryRateStore) cleanupLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.tick.C:
			s.prune()
		}
	}
}

func (s *MemoryRateStore) prune() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, counter := range s.data {
		if now.After(counter.windowEnd) {
			delete(s.data, key)
		}
	}
}

// Stop ends the cleanup goroutine.
func (s *MemoryRateStore) Stop() {
	s.once.Do(func() {
		s.tick.Stop()
		close(s.done)
	})
}

// Increment implements RateStore.
func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}

	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

type counterRateStore struct {
	counter cache.Counter
}

// NewRedisRateStore shares counters between instances through Redis.
func NewRedisRateStore(counter cache.Counter) RateStore {
	if counter == nil {
		return nil
	}
	return &counterRateStore{counter: counter}
}

func (s *counterRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.counter.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
