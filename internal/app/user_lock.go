package app

import "sync"

// userLocks serializes processing per user. At most one pipeline
// execution runs for any user at a time; different users proceed in
// parallel. Cursor and protocol state are only ever mutated while the
// user's lock is held.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the user's mutex and returns the release function.
func (l *userLocks) Acquire(userID string) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
