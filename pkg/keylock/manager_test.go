package keylock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/redline/pkg/keylock"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Serializes(t *testing.T) {
	mgr := keylock.New()
	ctx := context.Background()

	var inside, maxInside int32
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "doc-1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxInside) {
					atomic.StoreInt32(&maxInside, n)
				}
				// Read-Modify-Write with a delay loses updates without the lock.
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Equal(t, int32(1), maxInside)
}

func TestManager_IndependentKeys(t *testing.T) {
	mgr := keylock.New()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "a", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
	close(release)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := keylock.New()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_ = mgr.WithLock(ctx, fmt.Sprintf("key-%d", i), func(ctx context.Context) error { return nil })
	}

	assert.Equal(t, 0, mgr.Held(), "locks must be garbage collected once released")
}

func TestManager_PropagatesError(t *testing.T) {
	mgr := keylock.New()
	boom := errors.New("boom")
	err := mgr.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestManager_CanceledContext(t *testing.T) {
	mgr := keylock.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := mgr.WithLock(ctx, "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	ttl      time.Duration
	fail     error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.ttl = ttl
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked = append(l.unlocked, key)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	mgr := keylock.New(keylock.WithLocker(locker), keylock.WithTTL(5*time.Second))

	err := mgr.WithLock(context.Background(), "workflow:1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"workflow:1"}, locker.locked)
	assert.Equal(t, []string{"workflow:1"}, locker.unlocked)
	assert.Equal(t, 5*time.Second, locker.ttl)
}

func TestManager_DistributedLockerFailure(t *testing.T) {
	locker := &recordingLocker{fail: errors.New("redis down")}
	mgr := keylock.New(keylock.WithLocker(locker))

	called := false
	err := mgr.WithLock(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, mgr.Held())
}
