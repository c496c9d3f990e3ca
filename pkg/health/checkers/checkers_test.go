package checkers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	files    map[string][]byte
	writeErr error
	stale    bool
}

func (m *memStore) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale {
		return []byte("0"), nil
	}
	return m.files[path], nil
}

func (m *memStore) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[path] = data
	return nil
}

func TestStorageChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip succeeds", func(t *testing.T) {
		store := &memStore{}
		c := NewStorageChecker(store, "")
		assert.Equal(t, "snapshot-storage", c.Name())
		require.NoError(t, c.Check(ctx))
		assert.Contains(t, store.files, DefaultProbePath)
	})

	t.Run("write failure", func(t *testing.T) {
		c := NewStorageChecker(&memStore{writeErr: errors.New("bucket not found")}, "probe")
		err := c.Check(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket not found")
	})

	t.Run("stale read", func(t *testing.T) {
		c := NewStorageChecker(&memStore{stale: true}, "probe")
		assert.Error(t, c.Check(ctx))
	})
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker(pingFunc(func(context.Context) error { return nil }), "")
	assert.Equal(t, "database", ok.Name())
	assert.NoError(t, ok.Check(context.Background()))

	down := NewPingChecker(pingFunc(func(context.Context) error { return errors.New("connection refused") }), "postgres")
	assert.Equal(t, "postgres", down.Name())
	assert.ErrorContains(t, down.Check(context.Background()), "connection refused")
}

type fixedState string

func (s fixedState) State() string { return string(s) }

func TestBreakerChecker(t *testing.T) {
	assert.NoError(t, NewBreakerChecker("embedding", fixedState("closed")).Check(context.Background()))
	assert.NoError(t, NewBreakerChecker("embedding", fixedState("half-open")).Check(context.Background()))
	assert.Error(t, NewBreakerChecker("embedding", fixedState("open")).Check(context.Background()))
}
