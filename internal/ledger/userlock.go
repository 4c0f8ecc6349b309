package ledger

import "sync"

// userLocks hands out one mutex per user id so concurrent mutations for the
// same user serialize while different users proceed fully independently.
// Locks are never evicted; the table grows with the number of distinct
// users, not with traffic.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the user's mutex and returns the matching unlock.
func (u *userLocks) lock(userID string) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
