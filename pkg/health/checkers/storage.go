// Package checkers provides health.Check implementations for the companion's dependencies.
package checkers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"
)

// DefaultProbePath is written by StorageChecker next to the memory snapshots.
const DefaultProbePath = ".health/probe"

// ReadWriter is the part of a file provider the storage check needs.
type ReadWriter interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// StorageChecker verifies the snapshot store accepts writes and returns them intact.
type StorageChecker struct {
	store ReadWriter
	path  string
	name  string
	now   func() time.Time
}

// NewStorageChecker checks store by round-tripping a probe file at path.
func NewStorageChecker(store ReadWriter, path string) *StorageChecker {
	if path == "" {
		path = DefaultProbePath
	}
	return &StorageChecker{store: store, path: path, name: "snapshot-storage", now: time.Now}
}

// Name returns the name of this health check.
func (c *StorageChecker) Name() string {
	return c.name
}

// Check writes a timestamp and reads it back.
func (c *StorageChecker) Check(ctx context.Context) error {
	payload := []byte(strconv.FormatInt(c.now().UnixNano(), 10))
	if err := c.store.Write(ctx, c.path, payload); err != nil {
		return fmt.Errorf("probe write failed: %w", err)
	}
	got, err := c.store.Read(ctx, c.path)
	if err != nil {
		return fmt.Errorf("probe read failed: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("probe read returned stale data")
	}
	return nil
}
