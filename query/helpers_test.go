package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-query/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeClock, *logger.TestLogger) {
	t.Helper()
	clock := newFakeClock()
	log := logger.NewTestLogger()
	base := []Option{
		WithClock(clock.Now),
		WithLogger(log),
		WithGCInterval(Forever),
		WithRetryDelay(ConstantDelay(time.Millisecond)),
	}
	c := New(context.Background(), append(base, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c, clock, log
}

// counting returns a query function returning v and the counter of its calls.
func counting(v any) (QueryFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}, &calls
}

// gated returns a query function that blocks until release is closed.
func gated(v any, release <-chan struct{}) (QueryFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		select {
		case <-release:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, &calls
}

func failing(err error) (QueryFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (any, error) {
		calls.Add(1)
		return nil, err
	}, &calls
}

const (
	waitFor = time.Second
	tick    = time.Millisecond
)
