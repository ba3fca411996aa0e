package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/config"
	"uptimefleet/internal/logging"
	"uptimefleet/internal/master"
	"uptimefleet/internal/notify"
	"uptimefleet/internal/store"
)

// DOWN alerts for the same service are throttled to one per window.
const alertCooldown = 5 * time.Minute

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, "master")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DataDir, cfg.SaveDebounce, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	snap := st.Load()

	engine := master.NewEngine(logger, cfg.RetentionDays)
	engine.Restore(snap.ServiceConfigs, snap.ServiceStatuses)

	slaves := master.NewSlaveRegistry(cfg.HeartbeatTimeout())
	slaves.Restore(snap.SlaveStatuses)

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		notifier = notify.Fanout{slack, notifier}
	}
	alerter := master.NewAlerter(logger, notifier, alertCooldown)
	engine.OnTransition(alerter.Handle)

	hub := master.NewHub(logger)
	api := master.NewServer(logger, engine, slaves, hub, st, cfg.APIKey)

	srv := &http.Server{Addr: cfg.Addr(), Handler: api.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("master_listen",
			zap.String("addr", cfg.Addr()),
			zap.Int("services", len(snap.ServiceStatuses)),
			zap.Int("slaves", len(snap.SlaveStatuses)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("master_shutdown")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("shutdown_incomplete", zap.Error(err))
	}

	// Flush the pending snapshot so a debounce window open at exit is not
	// lost.
	if err := st.Close(); err != nil {
		logger.Error("final_flush_failed", zap.Error(err))
	}
}
