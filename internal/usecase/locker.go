package usecase

import "sync"

// keyedLocker serializes work per key. The dispatcher keys it by
// (exchange, symbol) so concurrent signals for the same market run
// one at a time while unrelated markets proceed in parallel.
// Mutexes are created on first use and kept for the process lifetime;
// the key space (configured exchanges x traded symbols) is small.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (l *keyedLocker) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
