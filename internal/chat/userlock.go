package chat

import "sync"

// userLocks provides per-user-id mutual exclusion. Every read-modify-write
// cycle on a user record (message handling, entitlement activation) runs
// under that user's lock, so a message racing a payment confirmation for the
// same id can never produce a lost update. Different ids never contend.
//
// Entries are kept for the process lifetime, matching the record lifecycle
// (records are never deleted either); the footprint is one mutex per user
// seen since startup.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for id, creating it on first use, and returns the
// matching unlock function.
func (l *userLocks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
