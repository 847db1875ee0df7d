package app

import "sync"

// requestLocks prevents duplicate concurrent downloads of the same URL. The
// lock is held only for the lifetime of one request and released on every
// exit path.
type requestLocks struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newRequestLocks() *requestLocks {
	return &requestLocks{inFlight: make(map[string]struct{})}
}

// TryAcquire claims the key. Returns false if a request for the same key is
// already in flight.
func (l *requestLocks) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.inFlight[key]; held {
		return false
	}
	l.inFlight[key] = struct{}{}
	return true
}

// Release frees the key. Safe to call for a key that was never acquired.
func (l *requestLocks) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, key)
}
