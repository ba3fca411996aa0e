package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uptimefleet/internal/config"
	"uptimefleet/internal/logging"
	"uptimefleet/internal/probe"
	"uptimefleet/internal/slave"
)

func main() {
	cfg := config.FromEnv()
	if cfg.MasterURL == "" {
		log.Fatal("MASTER_URL is required")
	}
	if cfg.SlaveID == "" {
		cfg.SlaveID = uuid.NewString()
	}
	if cfg.SlaveName == "" {
		cfg.SlaveName = cfg.SlaveID
	}

	logger, err := logging.NewLogger(cfg.LogDir, "slave")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	executor := probe.NewExecutor(cfg.RetryAttempts, cfg.RetryBackoff, cfg.CheckTimeout)
	registry := slave.NewRegistry(logger, executor, cfg.MaxConcurrentChecks)

	if cfg.ServicesFile != "" {
		seedServices(logger, registry, cfg.ServicesFile)
	}

	reporter := slave.NewReporter(logger,
		cfg.MasterURL, cfg.APIKey,
		cfg.SlaveID, cfg.SlaveName,
		advertiseHost(cfg.Host), cfg.Port,
		cfg.HeartbeatInterval,
	)
	reporter.Services = registry.IDs

	api := slave.NewServer(logger, registry, cfg.APIKey)
	srv := &http.Server{Addr: cfg.Addr(), Handler: api.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reporter.Run(ctx, registry.Results())

	go func() {
		logger.Info("slave_listen",
			zap.String("addr", cfg.Addr()),
			zap.String("slave_id", cfg.SlaveID),
			zap.String("master", cfg.MasterURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("slave_shutdown", zap.String("slave_id", cfg.SlaveID))

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("shutdown_incomplete", zap.Error(err))
	}
	registry.Close()
}

// seedServices loads the optional YAML service list. Invalid entries are
// skipped with a log line; the slave still starts.
func seedServices(logger *zap.Logger, registry *slave.Registry, path string) {
	valid, rejected, err := slave.LoadSeed(path)
	if err != nil {
		logger.Warn("seed_load_failed", zap.String("path", path), zap.Error(err))
		return
	}
	for _, rerr := range rejected {
		logger.Warn("seed_entry_rejected", zap.String("path", path), zap.Error(rerr))
	}
	for _, cfg := range valid {
		if err := registry.Add(cfg); err != nil {
			logger.Warn("seed_register_failed", zap.String("service_id", cfg.ID), zap.Error(err))
		}
	}
	logger.Info("seed_loaded",
		zap.String("path", path),
		zap.Int("registered", len(valid)),
		zap.Int("rejected", len(rejected)),
	)
}

// advertiseHost is what the master dials back on. A wildcard bind address
// is not dialable, so fall back to the machine's hostname.
func advertiseHost(bind string) string {
	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return bind
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "127.0.0.1"
}
