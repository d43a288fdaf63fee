// Package lock provides exclusion for (mailbox, operation) pairs so two
// cycles never page the same watermark at once.
package lock

import (
	"context"
	"sync"
)

// Locker acquires named locks without waiting. ok is false when another
// holder has the key; release must be called exactly once when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Key builds the lock name for a mailbox operation
func Key(accessID, operation string) string {
	return "satsync:lock:" + accessID + ":" + operation
}

// MemoryLocker is an in-process Locker
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
