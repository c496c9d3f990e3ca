package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryS3Client is an in-process S3Client for exercising S3FileProvider.
type memoryS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryS3Client() *memoryS3Client {
	return &memoryS3Client{objects: make(map[string][]byte)}
}

func (c *memoryS3Client) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (c *memoryS3Client) PutObject(_ context.Context, bucket, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (c *memoryS3Client) HeadObject(_ context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[bucket+"/"+key]; !ok {
		return ErrNotFound
	}
	return nil
}

func (c *memoryS3Client) DeleteObject(_ context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, bucket+"/"+key)
	return nil
}

func (c *memoryS3Client) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := []string{}
	for k := range c.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func providersUnderTest(t *testing.T) map[string]FileProvider {
	t.Helper()

	sqliteProvider, err := NewSQLiteFileProvider(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteProvider.Close() })

	gitProvider, err := NewGitFileProvider(GitProviderOptions{Path: filepath.Join(t.TempDir(), "repo"), InitIfMissing: true})
	require.NoError(t, err)

	return map[string]FileProvider{
		"local":    NewLocalFileProvider(t.TempDir()),
		"prefixed": NewPrefixedFileProvider(NewLocalFileProvider(t.TempDir()), "ns"),
		"s3":       NewS3FileProvider("bucket", "root", newMemoryS3Client()),
		"sqlite":   sqliteProvider,
		"git":      gitProvider,
	}
}

func TestFileProviderContract(t *testing.T) {
	ctx := context.Background()

	for name, provider := range providersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("read missing returns ErrNotFound", func(t *testing.T) {
				_, err := provider.Read(ctx, "snapshots/nobody.json")
				assert.ErrorIs(t, err, ErrNotFound)

				exists, err := provider.Exists(ctx, "snapshots/nobody.json")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("write then read", func(t *testing.T) {
				require.NoError(t, provider.Write(ctx, "snapshots/alice.json", []byte(`{"v":1}`)))
				data, err := provider.Read(ctx, "snapshots/alice.json")
				require.NoError(t, err)
				assert.Equal(t, `{"v":1}`, string(data))

				exists, err := provider.Exists(ctx, "snapshots/alice.json")
				require.NoError(t, err)
				assert.True(t, exists)
			})

			t.Run("overwrite replaces content", func(t *testing.T) {
				require.NoError(t, provider.Write(ctx, "snapshots/alice.json", []byte(`{"v":2}`)))
				data, err := provider.Read(ctx, "snapshots/alice.json")
				require.NoError(t, err)
				assert.Equal(t, `{"v":2}`, string(data))
			})

			t.Run("list by prefix", func(t *testing.T) {
				require.NoError(t, provider.Write(ctx, "snapshots/bob.json", []byte(`{}`)))
				require.NoError(t, provider.Write(ctx, "other/x.json", []byte(`{}`)))

				files, err := provider.List(ctx, "snapshots/")
				require.NoError(t, err)
				sort.Strings(files)
				assert.Equal(t, []string{"snapshots/alice.json", "snapshots/bob.json"}, files)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, provider.Delete(ctx, "snapshots/bob.json"))
				require.NoError(t, provider.Delete(ctx, "snapshots/bob.json"))
				_, err := provider.Read(ctx, "snapshots/bob.json")
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestLocalFileProviderLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	provider := NewLocalFileProvider(dir)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, provider.Write(ctx, "snapshots/u.json", []byte(strings.Repeat("x", i))))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u.json", entries[0].Name())

	info, err := os.Stat(filepath.Join(dir, "snapshots", "u.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLocalFileProviderListMissingDir(t *testing.T) {
	provider := NewLocalFileProvider(filepath.Join(t.TempDir(), "absent"))
	files, err := provider.List(context.Background(), "snapshots")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPrefixedFileProviderIsolation(t *testing.T) {
	ctx := context.Background()
	root := NewLocalFileProvider(t.TempDir())
	a := NewPrefixedFileProvider(root, "a")
	b := NewPrefixedFileProvider(root, "b/")

	require.NoError(t, a.Write(ctx, "f.json", []byte("A")))
	require.NoError(t, b.Write(ctx, "f.json", []byte("B")))

	data, err := a.Read(ctx, "f.json")
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	data, err = root.Read(ctx, "b/f.json")
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))
}

func TestGitFileProviderCommitsWrites(t *testing.T) {
	ctx := context.Background()
	repoPath := filepath.Join(t.TempDir(), "repo")

	_, err := NewGitFileProvider(GitProviderOptions{Path: repoPath})
	assert.Error(t, err, "missing repo without InitIfMissing")

	provider, err := NewGitFileProvider(GitProviderOptions{Path: repoPath, InitIfMissing: true})
	require.NoError(t, err)

	require.NoError(t, provider.Write(ctx, "snapshots/u.json", []byte("1")))
	require.NoError(t, provider.Write(ctx, "snapshots/u.json", []byte("2")))

	history, err := provider.History("snapshots/u.json")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Contains(t, history[0], "snapshot: update snapshots/u.json")

	files, err := provider.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/u.json"}, files)

	reopened, err := NewGitFileProvider(GitProviderOptions{Path: repoPath})
	require.NoError(t, err)
	data, err := reopened.Read(ctx, "snapshots/u.json")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestSQLiteFileProviderPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	first, err := NewSQLiteFileProvider(path)
	require.NoError(t, err)
	require.NoError(t, first.Write(ctx, "snapshots/u.json", []byte("persisted")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteFileProvider(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	data, err := second.Read(ctx, "snapshots/u.json")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestStorageManagerNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"local", Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: t.TempDir()}}, false},
		{"local without dir", Config{Backend: BackendLocal, LocalConfig: &LocalConfig{}}, true},
		{"s3 without client", Config{Backend: BackendS3, S3Config: &S3Config{Bucket: "b"}}, true},
		{"s3 without bucket", Config{Backend: BackendS3}, true},
		{"git", Config{Backend: BackendGit, GitConfig: &GitProviderOptions{Path: filepath.Join(t.TempDir(), "g"), InitIfMissing: true}}, false},
		{"git without config", Config{Backend: BackendGit}, true},
		{"sqlite", Config{Backend: BackendSQLite, SQLiteConfig: &SQLiteConfig{Path: ":memory:"}}, false},
		{"sqlite without path", Config{Backend: BackendSQLite, SQLiteConfig: &SQLiteConfig{}}, true},
		{"unknown", Config{Backend: "tape"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Backend, m.Backend())
			assert.NoError(t, m.Close())
		})
	}
}

func TestStorageManagerNamespaces(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := New(Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: dir}})
	require.NoError(t, err)

	require.NoError(t, m.GetProvider("snapshots").Write(ctx, "u.json", []byte("x")))

	_, err = os.Stat(filepath.Join(dir, "snapshots", "u.json"))
	assert.NoError(t, err)
	assert.Same(t, m.provider, m.GetProvider(""))
}
