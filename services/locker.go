package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLockTimeout = errors.New("lock wait timed out")

// Locker grants exclusive access to a named resource such as a listing.
// The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker serializes holders of the same key inside one process.
// A key is forgotten once nobody holds or waits for it.
type MemoryLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int // holder + waiters
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{wait: wait, slots: make(map[string]*lockSlot)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.leave(key, slot)
			})
		}, nil
	case <-timer.C:
		l.leave(key, slot)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.leave(key, slot)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) leave(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
