package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Storage backends for memory snapshots.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageGit    = "git"
	StorageSQLite = "sqlite"
)

// StorageConfig selects where memory snapshots and prompt overrides live.
type StorageConfig struct {
	Backend  string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`
	LocalDir string `env:"STORAGE_LOCAL_DIR" yaml:"local_dir" default:"./data"`

	S3Bucket  string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix  string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
	S3Region  string `env:"STORAGE_S3_REGION" yaml:"s3_region"`
	S3Profile string `env:"STORAGE_S3_PROFILE" yaml:"s3_profile"`

	GitPath        string `env:"STORAGE_GIT_PATH" yaml:"git_path"`
	GitAuthorName  string `env:"STORAGE_GIT_AUTHOR_NAME" yaml:"git_author_name"`
	GitAuthorEmail string `env:"STORAGE_GIT_AUTHOR_EMAIL" yaml:"git_author_email"`

	SQLitePath string `env:"STORAGE_SQLITE_PATH" yaml:"sqlite_path" default:"./data/snapshots.db"`
}

// Validate checks that the selected backend is fully configured.
func (c StorageConfig) Validate() error {
	var result error
	switch c.Backend {
	case StorageLocal:
		if c.LocalDir == "" {
			result = multierror.Append(result, fmt.Errorf("local_dir is required for the local backend"))
		}
	case StorageS3:
		if c.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3_bucket is required for the s3 backend"))
		}
	case StorageGit:
		if c.GitPath == "" {
			result = multierror.Append(result, fmt.Errorf("git_path is required for the git backend"))
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			result = multierror.Append(result, fmt.Errorf("sqlite_path is required for the sqlite backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("backend must be one of local, s3, git, sqlite, got %q", c.Backend))
	}
	return result
}
