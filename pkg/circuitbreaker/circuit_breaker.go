package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a breaker. Zero values fall back to defaults.
type Config struct {
	MaxFailures      uint32
	Timeout          time.Duration
	HalfOpenMaxCalls uint32
	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released after every transition
	OnStateChange func(name string, from, to State)
}

const (
	defaultMaxFailures      = 5
	defaultTimeout          = time.Minute
	defaultHalfOpenMaxCalls = 3
)

// CircuitBreaker stops calls to a failing dependency until a cool-down passes
type CircuitBreaker struct {
	name   string
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint32
}

// New creates a breaker for the named dependency
func New(name string, cfg Config, logger *logrus.Logger) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the breaker is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	from := cb.state
	cb.advance()
	to := cb.state

	allowed := true
	switch cb.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			allowed = false
		} else {
			cb.halfOpenCalls++
		}
	}
	if allowed {
		cb.requestCount++
	}
	state := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	if !allowed {
		return &CircuitBreakerError{Name: cb.name, State: state}
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	cb.mu.Lock()
	from := cb.state
	if failed {
		cb.failures++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
		}
	} else {
		cb.successCount++
		switch cb.state {
		case StateHalfOpen:
			if cb.successCount >= cb.cfg.HalfOpenMaxCalls {
				cb.reset()
			}
		case StateClosed:
			cb.failures = 0
		}
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to {
		entry := cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           to.String(),
		})
		if to == StateOpen {
			entry.WithField("failures", failures).Warn("Circuit breaker opened due to failures")
		} else {
			entry.Info("Circuit breaker closed after successful recovery")
		}
	}
	cb.notify(from, to)
}

// advance moves an open breaker to half-open once the timeout has passed.
// Callers hold mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.cfg.Timeout {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// GetState returns the current state, moving to half-open when due
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	from := cb.state
	cb.advance()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return to
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		Successes:       cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string
	State           State
	Failures        uint32
	Requests        uint32
	Successes       uint32
	LastFailureTime time.Time
}

// CircuitBreakerError is returned without calling through when the breaker rejects a call
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError checks if err or anything it wraps is a breaker rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}

// Group hands out one breaker per key, created on first use
type Group struct {
	cfg    Config
	logger *logrus.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates a group whose breakers share cfg
func NewGroup(cfg Config, logger *logrus.Logger) *Group {
	return &Group{cfg: cfg, logger: logger, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cb = New(key, g.cfg, g.logger)
		g.breakers[key] = cb
	}
	return cb
}

// Stats returns a snapshot of every breaker in the group
func (g *Group) Stats() []Stats {
	g.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.GetStats())
	}
	return out
}
