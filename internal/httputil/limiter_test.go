package httputil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func newFakeLimiter(interval time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter("test", interval)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestLimiter_FirstAcquireDoesNotWait(t *testing.T) {
	l, clock := newFakeLimiter(1500 * time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestLimiter_WaitsForRemainingDelta(t *testing.T) {
	l, clock := newFakeLimiter(1500 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.advance(400 * time.Millisecond)
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.sleeps, 1)
	assert.InDelta(t, float64(1100*time.Millisecond), float64(clock.sleeps[0]), float64(time.Millisecond))
}

func TestLimiter_NoWaitAfterInterval(t *testing.T) {
	l, clock := newFakeLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.advance(2 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	assert.Empty(t, clock.sleeps)
}

func TestLimiter_DoesNotBurstAfterIdle(t *testing.T) {
	l, clock := newFakeLimiter(time.Second)
	ctx := context.Background()

	clock.advance(time.Minute)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.sleeps, 1)
	assert.InDelta(t, float64(time.Second), float64(clock.sleeps[0]), float64(time.Millisecond))
}

func TestLimiter_ZeroIntervalNeverWaits(t *testing.T) {
	l, clock := newFakeLimiter(0)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Empty(t, clock.sleeps)
}

func TestLimiter_CancelledContext(t *testing.T) {
	l, clock := newFakeLimiter(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx))
	cancel()

	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)

	clock.advance(time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.sleeps, "cancelled acquire must not take a slot")
}

func TestLimiter_CancelledWhileWaitingReturnsSlot(t *testing.T) {
	l, clock := newFakeLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	l.sleep = func(context.Context, time.Duration) error { return context.DeadlineExceeded }
	require.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.sleep = clock.sleep
	clock.advance(time.Second)
	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, clock.sleeps)
}

func TestLimiter_SerializesConcurrentCallers(t *testing.T) {
	const (
		interval = 20 * time.Millisecond
		callers  = 5
	)
	l := NewLimiter("concurrent", interval)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	// First caller passes immediately, every other one waits a full interval
	assert.GreaterOrEqual(t, time.Since(start), (callers-1)*interval)
}
