package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesHolders(t *testing.T) {
	locker := NewMemoryLocker(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "post:1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLockerTimesOut(t *testing.T) {
	locker := NewMemoryLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "request:7")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "request:7")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// kunci lain tidak terpengaruh
	other, err := locker.Acquire(context.Background(), "request:8")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := locker.Acquire(context.Background(), "request:7")
	require.NoError(t, err)
	again()
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker(time.Minute)
	release, err := locker.Acquire(context.Background(), "post:2")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "post:2")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLockerForgetsIdleKeys(t *testing.T) {
	locker := NewMemoryLocker(20 * time.Millisecond)
	for i := 0; i < 50; i++ {
		release, err := locker.Acquire(context.Background(), fmt.Sprintf("post:%d", i))
		require.NoError(t, err)
		release()
	}

	held, err := locker.Acquire(context.Background(), "request:1")
	require.NoError(t, err)
	_, err = locker.Acquire(context.Background(), "request:1")
	require.ErrorIs(t, err, ErrLockTimeout)

	locker.mu.Lock()
	assert.Len(t, locker.slots, 1)
	assert.Equal(t, 1, locker.slots["request:1"].refs)
	locker.mu.Unlock()

	held()
	held()
	locker.mu.Lock()
	assert.Empty(t, locker.slots)
	locker.mu.Unlock()
}
