package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, doc map[string]interface{}) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(100000), cfg.Buckets.AssignmentCeiling)
	assert.Equal(t, int64(250000), cfg.Buckets.RevisionCeiling)
	assert.Equal(t, int64(100000), cfg.Buckets.LatestRevisionCeiling)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DataSetTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"server": map[string]interface{}{
			"port":             9191,
			"shutdown_timeout": "5s",
		},
		"store": map[string]interface{}{
			"backend": "leveldb",
			"leveldb": map[string]interface{}{"path": "/var/lib/datasets"},
		},
		"buckets": map[string]interface{}{
			"assignment_ceiling": 500,
		},
		"cache": map[string]interface{}{
			"dataset_ttl": "90s",
		},
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "leveldb", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/datasets", cfg.Store.LevelDB.Path)
	assert.Equal(t, int64(500), cfg.Buckets.AssignmentCeiling)
	assert.Equal(t, int64(250000), cfg.Buckets.RevisionCeiling)
	assert.Equal(t, 90*time.Second, cfg.Cache.DataSetTTL)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"store": map[string]interface{}{"backend": "memory"},
	})
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PORT", "6432")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("ADMIN_PORT", "9300")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, 6432, cfg.Store.Postgres.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 9300, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "cassandra" }, wantErr: "store.backend"},
		{name: "leveldb without path", mutate: func(c *Config) {
			c.Store.Backend = "leveldb"
			c.Store.LevelDB.Path = ""
		}, wantErr: "store.leveldb.path"},
		{name: "postgres without host", mutate: func(c *Config) {
			c.Store.Backend = "postgres"
			c.Store.Postgres.Host = ""
		}, wantErr: "store.postgres.host"},
		{name: "redis without host", mutate: func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Host = ""
		}, wantErr: "redis.host"},
		{name: "zero ceiling", mutate: func(c *Config) { c.Buckets.RevisionCeiling = 0 }, wantErr: "ceilings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_FillsOptionalDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.FanOutConcurrency = 0
	cfg.Logging = LoggingConfig{}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Service.FanOutConcurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}
