// Package resilience provides the circuit-breaker and retry helpers used
// to wrap calls to the external TTS synthesizer (§4.9, §6): a flaky or
// slow synthesizer must not be retried unboundedly, and should stop being
// called for a cooldown period once it is clearly down.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation
	StateOpen                         // failing fast, not calling through
	StateHalfOpen                     // probing whether the dependency recovered
)

// CircuitBreaker trips open after maxFailures consecutive failures and
// stays open for resetTimeout before allowing a bounded number of
// half-open probe calls through.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	halfOpenCount int
	lastFailTime  time.Time
}

// NewCircuitBreaker returns a closed CircuitBreaker.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// ErrCircuitOpen is returned by Call when the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// Call runs fn if the breaker currently allows requests through, and
// records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.recordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.halfOpenMax {
			return false
		}
		cb.halfOpenCount++
		return true
	}
	return false
}

func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
		}
		cb.failureCount = 0
		return
	}

	cb.failureCount++
	cb.lastFailTime = time.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
