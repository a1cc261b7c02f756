package keylock

import (
	"context"
	"sort"
	"sync"
)

// Map hands out one mutex per key so writers to the same key serialize while
// writers to different keys run concurrently. Entries are reference counted and
// removed once no goroutine holds or waits on them.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty lock map
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock blocks until key is held and returns its release function
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// LockAll acquires every distinct key in sorted order, so two callers locking
// overlapping sets cannot deadlock. The release function unlocks in reverse order.
func (m *Map) LockAll(keys ...string) (unlock func()) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		unlocks = append(unlocks, m.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

type heldKey struct{}

// Acquire locks every key not already held by ctx and returns a context that
// records them, so a callee acquiring the same key through that context does
// not deadlock against its caller.
func (m *Map) Acquire(ctx context.Context, keys ...string) (context.Context, func()) {
	held, _ := ctx.Value(heldKey{}).(map[string]bool)
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if !held[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return ctx, func() {}
	}

	unlock := m.LockAll(missing...)
	next := make(map[string]bool, len(held)+len(missing))
	for k := range held {
		next[k] = true
	}
	for _, k := range missing {
		next[k] = true
	}
	return context.WithValue(ctx, heldKey{}, next), unlock
}

// Len returns the number of keys currently held or awaited
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
