package checkers

import (
	"context"
	"fmt"
)

// StateReporter is satisfied by breaker.CircuitBreaker.
type StateReporter interface {
	State() string
}

// BreakerChecker fails while a circuit breaker is open. Register it as
// non-critical: the guarded provider has a fallback.
type BreakerChecker struct {
	breaker StateReporter
	name    string
}

// NewBreakerChecker creates a checker for the breaker guarding name.
func NewBreakerChecker(name string, breaker StateReporter) *BreakerChecker {
	return &BreakerChecker{breaker: breaker, name: name}
}

// Name returns the name of this health check.
func (c *BreakerChecker) Name() string {
	return c.name
}

// Check reports an open circuit.
func (c *BreakerChecker) Check(context.Context) error {
	if state := c.breaker.State(); state == "open" {
		return fmt.Errorf("circuit %s", state)
	}
	return nil
}
