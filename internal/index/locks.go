package index

import (
	"context"
	"sync"
)

// lockTable serializes writers per document id. Entries are created on
// first use and dropped when the last holder or waiter releases them, so
// the table only grows with the number of ids in flight.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*idLock)}
}

// acquire blocks until id is free or ctx is done. The returned release
// must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, id string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &idLock{sem: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		t.unref(id, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			t.unref(id, l)
		})
	}, nil
}

func (t *lockTable) unref(id string, l *idLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

// size returns the number of ids currently held or waited on.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
