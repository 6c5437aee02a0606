package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	FailureThreshold    int           // consecutive failures before opening
	CooldownPeriod      time.Duration // time spent OPEN before a probe is let through
	HalfOpenMaxRequests int           // successful probes needed to close again
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		CooldownPeriod:      30 * time.Second,
		HalfOpenMaxRequests: 2,
	}
}

// CircuitBreaker stops calling a failing dependency for a cooldown period
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	state           CircuitState
	failureCount    int
	successCount    int
	lastStateChange time.Time
	lastError       error
	now             func() time.Time
	logger          *StructuredLogger
	mu              sync.Mutex
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *StructuredLogger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
		logger:          logger,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.lastStateChange) >= cb.config.CooldownPeriod {
		cb.transitionTo(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureCount++
		cb.successCount = 0
		cb.lastError = err

		switch cb.state {
		case StateClosed:
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.transitionTo(StateOpen)
			}
		case StateHalfOpen:
			// a failed probe reopens immediately
			cb.transitionTo(StateOpen)
		}
		return
	}

	cb.failureCount = 0
	cb.successCount++
	if cb.state == StateHalfOpen && cb.successCount >= cb.config.HalfOpenMaxRequests {
		cb.transitionTo(StateClosed)
	}
}

// transitionTo must be called with mu held
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.failureCount = 0
	cb.successCount = 0

	fields := map[string]interface{}{
		"breaker": cb.name,
		"from":    oldState.String(),
		"to":      newState.String(),
	}
	if cb.lastError != nil {
		fields["last_error"] = cb.lastError.Error()
	}
	if newState == StateOpen {
		cb.logger.Warn("Circuit breaker state transition", fields)
	} else {
		cb.logger.Info("Circuit breaker state transition", fields)
	}
}

func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// guardedSink shields the request path from a sink whose backend is down
type guardedSink struct {
	sink    EventSink
	breaker *CircuitBreaker
}

func GuardSink(sink EventSink, breaker *CircuitBreaker) EventSink {
	return &guardedSink{sink: sink, breaker: breaker}
}

func (g *guardedSink) Publish(ctx context.Context, ev TransactionEvent) error {
	return g.breaker.Execute(func() error {
		return g.sink.Publish(ctx, ev)
	})
}
