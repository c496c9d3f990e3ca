// Package health runs liveness and readiness checks and serves them over HTTP.
//
// Checks are critical by default: a failing critical check makes the service
// unhealthy. Non-critical checks cover dependencies the service can degrade
// around; their failures are reported as "degraded" without failing the probe.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	// Name returns the human-readable name of this check
	Name() string

	// Check returns nil if healthy, error if unhealthy
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{
		name: name,
		fn:   fn,
	}
}

// Name returns the name of this check.
func (c *CheckFunc) Name() string {
	return c.name
}

// Check executes the check function.
func (c *CheckFunc) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// CheckResult represents the result of a single health check execution.
type CheckResult struct {
	Name     string
	Healthy  bool
	Critical bool
	Error    string
	Latency  time.Duration
}

// HealthStatus is the aggregate of one probe.
type HealthStatus struct {
	Healthy bool
	// Degraded is set when only non-critical checks failed.
	Degraded bool
	Checks   []CheckResult
}

type registeredCheck struct {
	check    Check
	critical bool
}

// CheckOption configures a registered check.
type CheckOption func(*registeredCheck)

// NonCritical marks a check whose failure degrades the service without making it unhealthy.
func NonCritical() CheckOption {
	return func(c *registeredCheck) {
		c.critical = false
	}
}

// HealthChecker manages and executes health checks for liveness and readiness probes.
type HealthChecker struct {
	livenessChecks   []registeredCheck
	readinessChecks  []registeredCheck
	timeout          time.Duration
	failureCount     map[string]int // consecutive failures per check
	failureThreshold int
	logger           logger.Logger
	mu               sync.RWMutex
}

// Option is a functional option for configuring HealthChecker.
type Option func(*HealthChecker)

// WithTimeout sets the timeout for individual health checks. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger for health check operations.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) {
		h.logger = l
	}
}

// WithFailureThreshold sets how many consecutive failures a check needs before
// it is reported as failing. Default is 3.
func WithFailureThreshold(threshold int) Option {
	return func(h *HealthChecker) {
		if threshold > 0 {
			h.failureThreshold = threshold
		}
	}
}

// New creates a new HealthChecker with the given options.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failureCount:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func register(check Check, opts []CheckOption) registeredCheck {
	rc := registeredCheck{check: check, critical: true}
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}

// AddLivenessCheck adds a check deciding whether the process should be restarted.
func (h *HealthChecker) AddLivenessCheck(check Check, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, register(check, opts))
}

// AddReadinessCheck adds a check deciding whether the service can take traffic.
func (h *HealthChecker) AddReadinessCheck(check Check, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, register(check, opts))
}

// CheckLiveness executes all liveness checks and returns an error if a critical one fails.
func (h *HealthChecker) CheckLiveness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := h.livenessChecks
	h.mu.RUnlock()

	return h.executeChecks(ctx, checks)
}

// CheckReadiness executes all readiness checks and returns an error if a critical one fails.
func (h *HealthChecker) CheckReadiness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := h.readinessChecks
	h.mu.RUnlock()

	return h.executeChecks(ctx, checks)
}

// executeChecks runs all checks concurrently and aggregates the results.
func (h *HealthChecker) executeChecks(ctx context.Context, checks []registeredCheck) (*HealthStatus, error) {
	if len(checks) == 0 {
		return &HealthStatus{Healthy: true, Checks: []CheckResult{}}, nil
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, rc := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.executeCheck(ctx, rc)
		}()
	}
	wg.Wait()

	status := &HealthStatus{Healthy: true, Checks: results}
	var failedChecks []string
	for _, result := range results {
		if result.Healthy {
			continue
		}
		if result.Critical {
			status.Healthy = false
			failedChecks = append(failedChecks, result.Name)
		} else {
			status.Degraded = true
		}
	}

	if !status.Healthy {
		return status, fmt.Errorf("health checks failed: %v", failedChecks)
	}
	return status, nil
}

// executeCheck runs a single health check with timeout and failure threshold logic.
func (h *HealthChecker) executeCheck(parentCtx context.Context, rc registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(parentCtx, h.timeout)
	defer cancel()

	name := rc.check.Name()
	start := time.Now()
	err := rc.check.Check(ctx)
	latency := time.Since(start)

	result := CheckResult{
		Name:     name,
		Healthy:  true,
		Critical: rc.critical,
		Latency:  latency,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failureCount[name] = 0
		if h.logger != nil {
			h.logger.Debug("Health check passed",
				logger.StringField("check", name),
				logger.DurationField("latency", latency))
		}
		return result
	}

	h.failureCount[name]++
	failures := h.failureCount[name]
	if failures < h.failureThreshold {
		if h.logger != nil {
			h.logger.Debug("Health check failed but below threshold",
				logger.StringField("check", name),
				logger.ErrorField(err),
				logger.IntField("failures", failures),
				logger.IntField("threshold", h.failureThreshold))
		}
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	if h.logger != nil {
		h.logger.Warn("Health check failed",
			logger.StringField("check", name),
			logger.ErrorField(err),
			logger.BoolField("critical", rc.critical),
			logger.IntField("failures", failures),
			logger.DurationField("latency", latency))
	}
	return result
}
