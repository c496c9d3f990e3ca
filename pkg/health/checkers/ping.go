package checkers

import (
	"context"
	"fmt"
)

// Pinger is satisfied by *pgxpool.Pool and *sql.DB-style handles.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a connection pool.
type PingChecker struct {
	pinger Pinger
	name   string
}

// NewPingChecker creates a checker named name, defaulting to "database".
func NewPingChecker(pinger Pinger, name string) *PingChecker {
	if name == "" {
		name = "database"
	}
	return &PingChecker{pinger: pinger, name: name}
}

// Name returns the name of this health check.
func (c *PingChecker) Name() string {
	return c.name
}

// Check pings the pool.
func (c *PingChecker) Check(ctx context.Context) error {
	if err := c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
