package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New("gateway", cfg, quietLogger())
	cb.now = clock.Now
	return cb, clock
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestNewDefaults(t *testing.T) {
	cb := New("gw", Config{}, nil)
	assert.Equal(t, uint32(defaultMaxFailures), cb.cfg.MaxFailures)
	assert.Equal(t, defaultTimeout, cb.cfg.Timeout)
	assert.Equal(t, uint32(defaultHalfOpenMaxCalls), cb.cfg.HalfOpenMaxCalls)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOpensAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(Config{MaxFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsCircuitBreakerError(err))
	assert.True(t, IsCircuitBreakerError(fmt.Errorf("wrapped: %w", err)))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(Config{MaxFailures: 2})

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(Config{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errBoom) },
	})

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	var transitions []string
	cb, clock := newTestBreaker(Config{
		MaxFailures:      1,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 2,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	clock.Advance(30 * time.Second)
	assert.Equal(t, StateOpen, cb.GetState())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute})

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, succeed)
	assert.True(t, IsCircuitBreakerError(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(Config{MaxFailures: 5})
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	stats := cb.GetStats()
	assert.Equal(t, "gateway", stats.Name)
	assert.Equal(t, uint32(2), stats.Requests)
	assert.Equal(t, uint32(1), stats.Failures)
	assert.False(t, stats.LastFailureTime.IsZero())
}

func TestGroup(t *testing.T) {
	g := NewGroup(Config{MaxFailures: 1}, quietLogger())
	a := g.Get("https://a.example")
	assert.Same(t, a, g.Get("https://a.example"))
	b := g.Get("https://b.example")
	assert.NotSame(t, a, b)

	_ = a.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, a.GetState())
	assert.Equal(t, StateClosed, b.GetState())
	assert.Len(t, g.Stats(), 2)
}
