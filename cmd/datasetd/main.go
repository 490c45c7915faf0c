package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/config"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/health"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/metrics"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/server"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/service"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the long-lived components of the process
type app struct {
	store   store.Store
	cache   store.Cache
	catalog *service.DataSetService
	admin   *server.AdminServer
	logger  *zap.Logger
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting data set catalog",
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Int("admin_port", cfg.Server.Port))

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- a.admin.Start()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("Admin server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown failed", zap.Error(err))
	}
	a.close()

	logger.Info("Shutdown complete")
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	s, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	cache, err := openCache(cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	catalog := service.NewDataSetService(s, cache, service.Options{
		Ceilings: map[model.Purpose]int64{
			model.PurposeAssignment:     cfg.Buckets.AssignmentCeiling,
			model.PurposeRevision:       cfg.Buckets.RevisionCeiling,
			model.PurposeLatestRevision: cfg.Buckets.LatestRevisionCeiling,
		},
		CacheTTL:          cfg.Cache.DataSetTTL,
		FanOutConcurrency: cfg.Service.FanOutConcurrency,
	}, logger, m)

	hc := health.NewHealthChecker(s, cache, logger)

	return &app{
		store:   s,
		cache:   cache,
		catalog: catalog,
		admin:   server.NewAdminServer(cfg, hc, registry, logger),
		logger:  logger,
	}, nil
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "leveldb":
		return store.NewLevelDBStore(cfg.LevelDB.Path, logger)
	case "postgres":
		return store.NewPostgresStore(
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Database,
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.MaxConnections,
			cfg.Postgres.MinConnections,
			logger,
		)
	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(logger), nil
	}
}

func openCache(cfg *config.Config, logger *zap.Logger) (store.Cache, error) {
	if !cfg.Redis.Enabled {
		return store.NewInMemoryCache(cfg.Cache.MaxSize, logger), nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	cache, err := store.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Redis cache connected", zap.String("address", addr))
	return cache, nil
}

func (a *app) close() {
	switch c := a.cache.(type) {
	case *store.RedisCache:
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close Redis cache", zap.Error(err))
		}
	case *store.InMemoryCache:
		c.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
