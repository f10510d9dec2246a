// Package store holds per-key rate limiting state.
//
// Keyed pairs a sync.Map for lock-free lookup with a mutex embedded in every
// entry, so accounting for one key never waits on another key.
package store

import (
	"sync"
	"sync/atomic"
)

type entry[S any] struct {
	mu    sync.Mutex
	state S
}

// Keyed maps identifier keys to lazily created state of type S.
type Keyed[S any] struct {
	entries sync.Map // key -> *entry[S]
	size    atomic.Int64
	create  func() S
}

// NewKeyed creates a store that builds the initial state for a new key with create.
func NewKeyed[S any](create func() S) *Keyed[S] {
	return &Keyed[S]{create: create}
}

func (k *Keyed[S]) getOrCreate(key string) *entry[S] {
	if e, ok := k.entries.Load(key); ok {
		return e.(*entry[S])
	}

	fresh := &entry[S]{state: k.create()}
	actual, loaded := k.entries.LoadOrStore(key, fresh)
	if !loaded {
		k.size.Add(1)
	}
	return actual.(*entry[S])
}

// Update runs fn against the state for key while holding that key's lock,
// creating the state first if the key has never been seen.
// The state pointer must not be retained after fn returns.
func (k *Keyed[S]) Update(key string, fn func(state *S) bool) bool {
	e := k.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(&e.state)
}

// View runs fn against the state for key under its lock without creating it.
// It reports whether the key exists.
func (k *Keyed[S]) View(key string, fn func(state *S)) bool {
	v, ok := k.entries.Load(key)
	if !ok {
		return false
	}

	e := v.(*entry[S])
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.state)
	return true
}

// Len returns the number of keys ever seen. Entries are never evicted.
func (k *Keyed[S]) Len() int {
	return int(k.size.Load())
}
