package node

import "sync"

type recordKey struct {
	blobName string
	index    uint32
}

// keyLock hands out one mutex per record key and forgets it once nobody holds it.
type keyLock struct {
	mu    sync.Mutex
	locks map[recordKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[recordKey]*refMutex)}
}

func (k *keyLock) lock(key recordKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
