package strongbox

import "sync"

type objectKey struct {
	bucket string
	key    string
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// keyLocks serialises writers of the same (bucket, key) within the process.
// Entries are dropped once no goroutine holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[objectKey]*refMutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[objectKey]*refMutex)}
}

// Lock blocks until the key is free and returns the matching unlock.
func (l *keyLocks) Lock(bucket, key string) func() {
	k := objectKey{bucket: bucket, key: key}

	l.mu.Lock()
	m, ok := l.locks[k]
	if !ok {
		m = &refMutex{}
		l.locks[k] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
