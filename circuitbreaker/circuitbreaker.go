package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/notifier"

	log "github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit tripped, requests blocked
	StateHalfOpen              // One probe request in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling an upstream after repeated failures
type CircuitBreaker struct {
	name            string
	state           State
	failures        int
	threshold       int
	cooldown        time.Duration
	halfOpenTimeout time.Duration
	openedAt        time.Time
	halfOpenStart   time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// Config holds circuit breaker configuration
type Config struct {
	Name            string        // Name for logging
	Threshold       int           // Consecutive failures before opening
	Cooldown        time.Duration // How long to stay open before probing
	HalfOpenTimeout time.Duration // Max time a probe may take before reopening
	Clock           func() time.Time
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &CircuitBreaker{
		name:            cfg.Name,
		state:           StateClosed,
		threshold:       cfg.Threshold,
		cooldown:        cfg.Cooldown,
		halfOpenTimeout: cfg.HalfOpenTimeout,
		now:             cfg.Clock,
	}
}

// Allow reports whether a request may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.state = StateHalfOpen
			cb.halfOpenStart = cb.now()
			log.Infof("%s Cooldown passed, transitioning to HALF-OPEN", logcolors.CircuitBreakerPrefix(cb.name))
			return true
		}
		return false

	case StateHalfOpen:
		if cb.now().Sub(cb.halfOpenStart) >= cb.halfOpenTimeout {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			log.Warnf("%s Half-open probe timed out, transitioning back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))
		}
		// the probe already in flight is the only request allowed
		return false

	default:
		return true
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		log.Infof("%s Probe succeeded, transitioning to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
		notifier.PublishCircuitBreakerRecovered(cb.name)
	}
	cb.state = StateClosed
	cb.failures = 0
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = cb.now()
		log.Warnf("%s Probe failed, transitioning back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))
		notifier.PublishCircuitBreakerOpen(cb.name, cb.failures, cb.cooldown)
	case StateClosed:
		// warn at 60% of threshold
		warnAt := (cb.threshold * 3) / 5
		if warnAt < 2 {
			warnAt = 2
		}
		if cb.failures == warnAt && warnAt < cb.threshold {
			notifier.PublishHighFailureRate(cb.name, cb.failures, cb.threshold)
		}

		if cb.failures >= cb.threshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			log.Warnf("%s Threshold reached (%d failures), transitioning to OPEN (cooldown: %v)",
				logcolors.CircuitBreakerPrefix(cb.name), cb.failures, cb.cooldown)
			notifier.PublishCircuitBreakerOpen(cb.name, cb.failures, cb.cooldown)
		}
	}
}

// Execute runs fn if the circuit allows it. Errors for which countable
// returns false (expected outcomes such as "not found") do not trip the breaker.
func (cb *CircuitBreaker) Execute(fn func() error, countable func(error) bool) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns the state, consecutive failure count and time until the next probe
func (cb *CircuitBreaker) Stats() (state State, failures int, timeUntilRetry time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.timeUntilRetryLocked()
}

// TimeUntilRetry returns how long until the circuit will probe again.
// Zero when closed.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.timeUntilRetryLocked()
}

func (cb *CircuitBreaker) timeUntilRetryLocked() time.Duration {
	var remaining time.Duration
	switch cb.state {
	case StateOpen:
		remaining = cb.cooldown - cb.now().Sub(cb.openedAt)
	case StateHalfOpen:
		remaining = cb.halfOpenTimeout - cb.now().Sub(cb.halfOpenStart)
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.halfOpenStart = time.Time{}
	log.Infof("%s Manually reset to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
}

// Threshold returns the configured failure threshold
func (cb *CircuitBreaker) Threshold() int {
	return cb.threshold
}
