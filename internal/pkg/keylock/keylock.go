// Package keylock provides per-key mutual exclusion.
//
// The exchange engine holds a key lock for the whole of each state-mutating
// operation, including the blocking oracle read, so two concurrent accept
// attempts on the same offer can never both succeed.
package keylock

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is a set of mutexes addressed by string key. Entries are
// created on first use and removed once the last holder unlocks, so the
// map does not grow with the key space.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, blocking until it is available, and
// returns the corresponding unlock function. The unlock function must be
// called exactly once.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
