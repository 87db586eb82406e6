package httputil

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/lox/mpawatch/internal/metrics"
)

// Limiter enforces a minimum spacing between outbound calls to one upstream
// API. A single Limiter must be shared by every caller of that API so that
// concurrent region requests still queue behind one clock.
type Limiter struct {
	name string
	rl   *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter allows one call per minInterval. The bucket holds a single
// token, so calls never burst.
func NewLimiter(name string, minInterval time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		name:  name,
		rl:    rate.NewLimiter(limit, 1),
		now:   time.Now,
		sleep: sleepContext,
	}
}

func (l *Limiter) Name() string {
	return l.name
}

// Acquire blocks until the caller's slot comes up. Concurrent callers get
// consecutive slots, one interval apart. A cancelled context returns its
// error and gives the slot back.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := l.now()
	r := l.rl.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("%s: rate limiter refused reservation", l.name)
	}

	wait := r.DelayFrom(now)
	if wait <= 0 {
		return nil
	}
	metrics.RateLimitWait.WithLabelValues(l.name).Observe(wait.Seconds())
	if err := l.sleep(ctx, wait); err != nil {
		r.CancelAt(l.now())
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
