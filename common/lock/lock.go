package lock

import (
	"context"
	"sync"
)

// Locker serializes work scoped by a string key. The upload pipeline acquires
// the firmware identity before the delta-history read-modify-write so that
// concurrent delta uploads for the same firmware cannot interleave and drop
// each other's entries.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. On success the
	// returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (func(), error)
	Close() error
}

// MemoryLocker implements Locker with in-process keyed semaphores.
// Sufficient for a single service instance; multi-instance deployments
// use the Redis implementation instead.
type MemoryLocker struct {
	mu   sync.Mutex
	sems map[string]*semaphore
}

type semaphore struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{sems: make(map[string]*semaphore)}
}

// Acquire takes the per-key semaphore, honoring context cancellation
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[key]
	if !ok {
		sem = &semaphore{ch: make(chan struct{}, 1)}
		l.sems[key] = sem
	}
	sem.refs++
	l.mu.Unlock()

	select {
	case sem.ch <- struct{}{}:
		return func() {
			<-sem.ch
			l.put(key, sem)
		}, nil
	case <-ctx.Done():
		l.put(key, sem)
		return nil, ctx.Err()
	}
}

// Close releases nothing; memory semaphores need no teardown
func (l *MemoryLocker) Close() error {
	return nil
}

func (l *MemoryLocker) put(key string, sem *semaphore) {
	l.mu.Lock()
	sem.refs--
	if sem.refs == 0 {
		delete(l.sems, key)
	}
	l.mu.Unlock()
}
