package service

import "sync"

// keyedLocks serializes mutations per account/vault id, so a withdrawal and
// a loss-limit check on the same account are atomic with respect to each
// other while distinct accounts proceed in parallel.
type keyedLocks struct {
	m sync.Map
}

func (l *keyedLocks) lock(key string) func() {
	v, _ := l.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
