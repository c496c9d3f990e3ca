package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DatabaseConfig holds the chat history database. Without a URL chats are kept in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" yaml:"-"`
	MaxConnections  int32         `env:"DATABASE_MAX_CONNECTIONS" yaml:"max_connections" default:"25"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" yaml:"conn_max_lifetime" default:"5m"`
	ConnMaxIdleTime time.Duration `env:"DATABASE_CONN_MAX_IDLE_TIME" yaml:"conn_max_idle_time" default:"5m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" yaml:"auto_migrate" default:"true"`
}

// Validate checks pool settings when a database is configured.
func (c DatabaseConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	var result error
	if c.MaxConnections <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_connections must be greater than 0 when database is configured"))
	}
	return result
}
