package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStoreConfig struct {
	Dir       string        `env:"TEST_STORE_DIR" yaml:"dir" default:"./data"`
	Dimension int           `env:"TEST_STORE_DIMENSION" yaml:"dimension" default:"384"`
	Timeout   time.Duration `env:"TEST_STORE_TIMEOUT" yaml:"timeout" default:"5s"`
}

type testConfig struct {
	Store     testStoreConfig `yaml:"store"`
	APIKey    string          `env:"TEST_API_KEY" yaml:"api_key" required:"true"`
	Debug     bool            `env:"TEST_DEBUG" yaml:"debug" default:"false"`
	Threshold float64         `env:"TEST_THRESHOLD" yaml:"threshold" default:"0.5"`
	Origins   []string        `env:"TEST_ORIGINS" yaml:"origins" default:"a,b"`
}

func (c testConfig) Validate() error {
	if c.Store.Dimension < 1 {
		return errors.New("dimension must be positive")
	}
	return nil
}

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestGetConfigFromEnvVars(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
		want    testConfig
		wantErr bool
	}{
		{
			name:    "defaults applied when only required field set",
			envVars: map[string]string{"TEST_API_KEY": "k"},
			want: testConfig{
				Store:     testStoreConfig{Dir: "./data", Dimension: 384, Timeout: 5 * time.Second},
				APIKey:    "k",
				Threshold: 0.5,
				Origins:   []string{"a", "b"},
			},
		},
		{
			name: "environment overrides defaults",
			envVars: map[string]string{
				"TEST_API_KEY":         "env-key",
				"TEST_STORE_DIR":       "/var/lib/companion",
				"TEST_STORE_DIMENSION": "16",
				"TEST_STORE_TIMEOUT":   "250ms",
				"TEST_DEBUG":           "true",
				"TEST_THRESHOLD":       "0.75",
				"TEST_ORIGINS":         "http://x, http://y",
			},
			want: testConfig{
				Store:     testStoreConfig{Dir: "/var/lib/companion", Dimension: 16, Timeout: 250 * time.Millisecond},
				APIKey:    "env-key",
				Debug:     true,
				Threshold: 0.75,
				Origins:   []string{"http://x", "http://y"},
			},
		},
		{
			name:    "missing required field",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name:    "unparseable int",
			envVars: map[string]string{"TEST_API_KEY": "k", "TEST_STORE_DIMENSION": "many"},
			wantErr: true,
		},
		{
			name:    "validator rejects",
			envVars: map[string]string{"TEST_API_KEY": "k", "TEST_STORE_DIMENSION": "-1"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setEnv(t, tc.envVars)

			var got testConfig
			err := GetConfigFromEnvVars(&got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetConfigFromFile(t *testing.T) {
	yamlContent := `
api_key: ${TEST_FILE_SECRET}
debug: true
store:
  dir: /srv/snapshots
  dimension: 8
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	t.Setenv("TEST_FILE_SECRET", "from-env")
	t.Setenv("TEST_STORE_DIMENSION", "12")

	var cfg testConfig
	require.NoError(t, GetConfig(&cfg, path, false))

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/srv/snapshots", cfg.Store.Dir)
	assert.Equal(t, 12, cfg.Store.Dimension, "env overrides file")
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
}

func TestGetConfigFileErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	t.Run("strict mode fails on missing file", func(t *testing.T) {
		var cfg testConfig
		assert.Error(t, GetConfig(&cfg, missing, false))
	})

	t.Run("lenient mode falls back to env", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "fallback")
		var cfg testConfig
		require.NoError(t, GetConfig(&cfg, missing, true))
		assert.Equal(t, "fallback", cfg.APIKey)
	})

	t.Run("unset interpolation leaves required field empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api_key: ${TEST_UNSET_VARIABLE}\n"), 0o600))
		var cfg testConfig
		assert.Error(t, GetConfig(&cfg, path, false))
	})
}
