package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	// BackendLocal uses the local filesystem for storage.
	BackendLocal BackendType = "local"
	// BackendS3 uses AWS S3 for storage.
	BackendS3 BackendType = "s3"
	// BackendGit uses a local git repository, committing every write.
	BackendGit BackendType = "git"
	// BackendSQLite stores files as rows in a SQLite database.
	BackendSQLite BackendType = "sqlite"
)

// Config holds the configuration for the StorageManager.
type Config struct {
	Backend BackendType

	LocalConfig  *LocalConfig
	S3Config     *S3Config
	GitConfig    *GitProviderOptions
	SQLiteConfig *SQLiteConfig
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	BaseDir string
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Bucket string
	Prefix string
	Client *s3.Client
}

// SQLiteConfig holds configuration for SQLite storage.
type SQLiteConfig struct {
	Path string
}

// StorageManager owns the configured backend and hands out namespaced providers.
type StorageManager struct {
	backend  BackendType
	provider FileProvider
}

// New creates a new StorageManager with the given configuration.
func New(config Config) (*StorageManager, error) {
	var provider FileProvider

	switch config.Backend {
	case BackendLocal:
		if config.LocalConfig == nil || config.LocalConfig.BaseDir == "" {
			return nil, fmt.Errorf("base directory is required for local backend")
		}
		provider = NewLocalFileProvider(config.LocalConfig.BaseDir)

	case BackendS3:
		if config.S3Config == nil || config.S3Config.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if config.S3Config.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		provider = NewS3FileProvider(config.S3Config.Bucket, config.S3Config.Prefix, NewAWSS3Client(config.S3Config.Client))

	case BackendGit:
		if config.GitConfig == nil {
			return nil, fmt.Errorf("git config is required for git backend")
		}
		gitProvider, err := NewGitFileProvider(*config.GitConfig)
		if err != nil {
			return nil, err
		}
		provider = gitProvider

	case BackendSQLite:
		if config.SQLiteConfig == nil {
			return nil, fmt.Errorf("sqlite config is required for sqlite backend")
		}
		sqliteProvider, err := NewSQLiteFileProvider(config.SQLiteConfig.Path)
		if err != nil {
			return nil, err
		}
		provider = sqliteProvider

	default:
		return nil, fmt.Errorf("unsupported backend type: %q", config.Backend)
	}

	return &StorageManager{
		backend:  config.Backend,
		provider: provider,
	}, nil
}

// NewWithProvider creates a StorageManager around a custom FileProvider.
func NewWithProvider(provider FileProvider) *StorageManager {
	return &StorageManager{
		provider: provider,
	}
}

// GetProvider returns a FileProvider scoped to namespace, e.g. "snapshots".
func (m *StorageManager) GetProvider(namespace string) FileProvider {
	if namespace == "" {
		return m.provider
	}
	return NewPrefixedFileProvider(m.provider, namespace)
}

// Backend returns the configured backend type.
func (m *StorageManager) Backend() BackendType {
	return m.backend
}

// Close releases backend resources, if the backend holds any.
func (m *StorageManager) Close() error {
	if closer, ok := m.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
