// Manual one-shot rebalance run, outside the daily schedule. Useful after a
// failed scheduled run or for a first deployment test.
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
)

// alwaysTradingCalendar bypasses the trading-day gate for -force runs.
type alwaysTradingCalendar struct{}

func (alwaysTradingCalendar) IsTradingDay(time.Time) bool { return true }

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/weight-sync.db", "path to SQLite database")
	force := flag.Bool("force", false, "run even on a non-trading day")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupt received, aborting run")
		cancel()
	}()

	var cal scheduler.Calendar
	if *force {
		log.Warn("calendar gate bypassed (-force)")
		cal = alwaysTradingCalendar{}
	} else {
		szse := calendar.NewSZSESource(cfg.CalendarAPITimeout(), log)
		cal = calendar.New(cfg.Calendar.CacheFile, szse, log)
	}

	statusStore := status.NewStore(cfg.Status.File)
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

	if err := runner.ExecuteTrading(ctx); err != nil {
		os.Exit(1)
	}
}
