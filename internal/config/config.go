package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the data set catalog service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Buckets BucketsConfig `mapstructure:"buckets" yaml:"buckets"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig represents the admin HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the wide-column backend
type StoreConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb" yaml:"leveldb"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// LevelDBConfig represents the embedded backend configuration
type LevelDBConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig represents the PostgreSQL backend configuration
type PostgresConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Database       string `mapstructure:"database" yaml:"database"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"password"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	MinConnections int    `mapstructure:"min_connections" yaml:"min_connections"`
}

// RedisConfig represents the Redis data set cache configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// BucketsConfig holds the rollover ceiling of each bucket purpose
type BucketsConfig struct {
	AssignmentCeiling     int64 `mapstructure:"assignment_ceiling" yaml:"assignment_ceiling"`
	RevisionCeiling       int64 `mapstructure:"revision_ceiling" yaml:"revision_ceiling"`
	LatestRevisionCeiling int64 `mapstructure:"latest_revision_ceiling" yaml:"latest_revision_ceiling"`
}

// CacheConfig represents data set cache configuration
type CacheConfig struct {
	DataSetTTL time.Duration `mapstructure:"dataset_ttl" yaml:"dataset_ttl"`
	MaxSize    int           `mapstructure:"max_size" yaml:"max_size"`
}

// ServiceConfig represents catalog service configuration
type ServiceConfig struct {
	FanOutConcurrency int `mapstructure:"fan_out_concurrency" yaml:"fan_out_concurrency"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	switch c.Store.Backend {
	case "memory":
	case "leveldb":
		if c.Store.LevelDB.Path == "" {
			return errors.New("store.leveldb.path is required for the leveldb backend")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" {
			return errors.New("store.postgres.host is required for the postgres backend")
		}
		if c.Store.Postgres.Database == "" {
			return errors.New("store.postgres.database is required for the postgres backend")
		}
		if c.Store.Postgres.User == "" {
			return errors.New("store.postgres.user is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of: memory, leveldb, postgres (got %q)", c.Store.Backend)
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis.host is required when redis is enabled")
	}
	if c.Buckets.AssignmentCeiling <= 0 || c.Buckets.RevisionCeiling <= 0 || c.Buckets.LatestRevisionCeiling <= 0 {
		return errors.New("buckets ceilings must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		return errors.New("cache.max_size must be positive")
	}
	if c.Service.FanOutConcurrency <= 0 {
		c.Service.FanOutConcurrency = 8
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			LevelDB: LevelDBConfig{
				Path: "data/datasets",
			},
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "datasets",
				User:           "datasets",
				Password:       "",
				MaxConnections: 50,
				MinConnections: 5,
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Buckets: BucketsConfig{
			AssignmentCeiling:     100000,
			RevisionCeiling:       250000,
			LatestRevisionCeiling: 100000,
		},
		Cache: CacheConfig{
			DataSetTTL: 5 * time.Minute,
			MaxSize:    10000,
		},
		Service: ServiceConfig{
			FanOutConcurrency: 8,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
