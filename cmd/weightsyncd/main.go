package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/calendar"
	"github.com/minqt/weight-sync/internal/config"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/recorder"
	"github.com/minqt/weight-sync/internal/scheduler"
	"github.com/minqt/weight-sync/internal/status"
	"github.com/minqt/weight-sync/internal/storage"
	"github.com/minqt/weight-sync/internal/telegram"
	"github.com/minqt/weight-sync/internal/trader"
	"github.com/minqt/weight-sync/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/weight-sync.db", "path to SQLite database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("starting weight-sync", "account_id", cfg.Broker.AccountID)

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusStore := status.NewStore(cfg.Status.File)
	szse := calendar.NewSZSESource(cfg.CalendarAPITimeout(), log)
	cal := calendar.New(cfg.Calendar.CacheFile, szse, log)
	gateway := broker.NewClient(cfg, log)
	engine := trader.NewEngine(gateway, trader.Config{
		FillWait:     cfg.FillWait(),
		PollInterval: cfg.PollInterval(),
		SplitLimit:   cfg.Trading.SplitLimit,
		StarPrefix:   cfg.Trading.StarPrefix,
		StarSuffix:   cfg.Trading.StarSuffix,
	}, log)
	notifier := telegram.NewNotifier(cfg, log)
	rec := recorder.New(gateway, repo, log)
	runner := scheduler.NewRunner(gateway, engine, repo, statusStore, rec, cal, notifier, cfg, log)
	service := scheduler.NewService(runner, statusStore, cfg, log)
	webServer := web.NewServer(repo, statusStore, cfg, log)

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error("scheduler error", "error", err)
		}
	}()

	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	notifier.NotifyStatus("🚀 weight-sync started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel() // stops the scheduler; an in-flight phase finishes or aborts

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	notifier.NotifyStatus("🛑 weight-sync stopped")
	log.Info("weight-sync stopped")
}
