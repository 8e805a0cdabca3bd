// Package keylock serializes work per key inside one process.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Map hands out one lock per key and forgets it once nobody holds or
// waits on it.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock waits until key is free or ctx is done. On success it returns the
// matching unlock func.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.release(key, e)
		return nil, err
	}
	return func() {
		e.sem.Release(1)
		m.release(key, e)
	}, nil
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Len reports how many keys are held or waited on.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
