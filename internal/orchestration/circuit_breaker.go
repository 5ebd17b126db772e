package orchestration

import (
	"sync"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
)

// CircuitBreakerConfig configures one breaker instance: how many failures
// within how wide a window trip it, how long it stays open, and how many
// consecutive half-open successes close it again.
type CircuitBreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	OpenTimeout      time.Duration
	SuccessThreshold int
	Action           contracts.RecoveryAction
}

// DefaultCircuitBreakerConfig mirrors scenario defaults used across the
// pack's resilience breakers: three strikes, thirty-second window.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    30 * time.Second,
		OpenTimeout:      15 * time.Second,
		SuccessThreshold: 2,
		Action:           contracts.RecoveryRestructure,
	}
}

// circuitBreaker is a three-state breaker with fixed thresholds: Closed
// counts failures within the trailing FailureWindow (a sliding window) and
// trips to Open at FailureThreshold; Open
// moves to HalfOpen after OpenTimeout elapses; HalfOpen closes after
// SuccessThreshold consecutive successes and reopens on any failure.
type circuitBreaker struct {
	scope contracts.CircuitScope
	cfg   CircuitBreakerConfig

	mu              sync.Mutex
	state           contracts.CircuitState
	failureTimes    []time.Time
	halfOpenSuccess int
	openedAt        time.Time
}

// newCircuitBreaker creates a breaker for scope using cfg.
func newCircuitBreaker(scope contracts.CircuitScope, cfg CircuitBreakerConfig) *circuitBreaker {
	return &circuitBreaker{scope: scope, cfg: cfg, state: contracts.CircuitClosed}
}

func (b *circuitBreaker) Scope() contracts.CircuitScope { return b.scope }

func (b *circuitBreaker) State() contracts.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a dispatch may proceed, transitioning Open to
// HalfOpen once the open timeout has elapsed.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case contracts.CircuitClosed:
		return true
	case contracts.CircuitHalfOpen:
		return true
	case contracts.CircuitOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenTimeout {
			b.state = contracts.CircuitHalfOpen
			b.halfOpenSuccess = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case contracts.CircuitClosed:
		// no-op while closed
	case contracts.CircuitHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
			b.state = contracts.CircuitClosed
			b.failureTimes = nil
			b.halfOpenSuccess = 0
		}
	case contracts.CircuitOpen:
		// a success while open shouldn't happen (Allow returns false), ignore
	}
}

// RecordFailure registers a failed dispatch. It returns tripped=true the
// instant the breaker transitions into Open, along with the configured
// recovery action.
func (b *circuitBreaker) RecordFailure() (bool, contracts.RecoveryAction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case contracts.CircuitHalfOpen:
		b.state = contracts.CircuitOpen
		b.openedAt = now
		b.halfOpenSuccess = 0
		return true, b.cfg.Action

	case contracts.CircuitOpen:
		return false, b.cfg.Action

	case contracts.CircuitClosed:
		b.failureTimes = append(b.failureTimes, now)
		cutoff := now.Add(-b.cfg.FailureWindow)
		kept := b.failureTimes[:0]
		for _, t := range b.failureTimes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.failureTimes = kept

		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.state = contracts.CircuitOpen
			b.openedAt = now
			b.failureTimes = nil
			return true, b.cfg.Action
		}
		return false, b.cfg.Action
	}
	return false, b.cfg.Action
}

// CircuitRegistry owns every breaker keyed by its scope, created lazily on
// first use. It is the single process-wide home for circuit state per the
// "encapsulate global mutable state behind a synchronized interface" rule.
type CircuitRegistry struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[contracts.CircuitScope]*circuitBreaker
}

// NewCircuitRegistry creates a registry that lazily instantiates breakers
// with cfg on first reference to a scope.
func NewCircuitRegistry(cfg CircuitBreakerConfig) *CircuitRegistry {
	return &CircuitRegistry{cfg: cfg, breakers: make(map[contracts.CircuitScope]*circuitBreaker)}
}

// Get returns the breaker for scope, creating it on first use.
func (r *CircuitRegistry) Get(scope contracts.CircuitScope) contracts.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[scope]
	if !ok {
		b = newCircuitBreaker(scope, r.cfg)
		r.breakers[scope] = b
	}
	return b
}
