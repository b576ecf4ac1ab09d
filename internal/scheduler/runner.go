// Package scheduler drives the daily workflow: the trading phase at the
// prepare time and the value-recording phase at the record time, both gated
// on the trading calendar.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/config"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/recorder"
	"github.com/minqt/weight-sync/internal/status"
	"github.com/minqt/weight-sync/internal/storage"
	"github.com/minqt/weight-sync/internal/telegram"
	"github.com/minqt/weight-sync/internal/trader"
)

// Calendar is the trading-day gate the runner consults.
type Calendar interface {
	IsTradingDay(t time.Time) bool
}

// Runner executes one phase at a time. The trading phase walks
// CHECK_DAY → PREPARE → CONNECT → SNAPSHOT → WAIT_OPEN → COMPUTE → EXECUTE;
// a failure in any step lands in FAILED with the step's error persisted, and
// nothing retries until the next day's trigger.
type Runner struct {
	gateway  broker.Gateway
	engine   *trader.Engine
	repo     *storage.Repository
	status   *status.Store
	recorder *recorder.Recorder
	calendar Calendar
	notifier *telegram.Notifier
	cfg      *config.Config
	logger   *logger.Logger

	now func() time.Time
}

func NewRunner(
	gw broker.Gateway,
	engine *trader.Engine,
	repo *storage.Repository,
	statusStore *status.Store,
	rec *recorder.Recorder,
	cal Calendar,
	notifier *telegram.Notifier,
	cfg *config.Config,
	log *logger.Logger,
) *Runner {
	loc := cfg.MarketLocation()
	return &Runner{
		gateway:  gw,
		engine:   engine,
		repo:     repo,
		status:   statusStore,
		recorder: rec,
		calendar: cal,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      func() time.Time { return time.Now().In(loc) },
	}
}

// ExecuteTrading runs the daily rebalance. A non-trading day is a logged
// no-op, not a failure.
func (r *Runner) ExecuteTrading(ctx context.Context) error {
	today := r.now()
	r.logger.Info("trading phase triggered", "date", today.Format("20060102"))

	if !r.calendar.IsTradingDay(today) {
		r.logger.Info("not a trading day, skipping rebalance")
		return nil
	}

	if err := r.status.MarkRunning(); err != nil {
		r.logger.Error("mark status running", "error", err)
	}

	if err := r.runTrading(ctx, today); err != nil {
		r.logger.Error("rebalance run failed", "error", err)
		if werr := r.status.MarkCompleted(false, err.Error()); werr != nil {
			r.logger.Error("mark status failed", "error", werr)
		}
		r.notifier.NotifyRunResult(false, err.Error())
		return err
	}

	if err := r.status.MarkCompleted(true, "rebalance completed"); err != nil {
		r.logger.Error("mark status completed", "error", err)
	}
	r.notifier.NotifyRunResult(true, "rebalance completed")
	r.logger.Info("rebalance run succeeded")
	return nil
}

func (r *Runner) runTrading(ctx context.Context, today time.Time) error {
	// PREPARE: pick today's target allocation
	rows, err := r.repo.LoadTargetPositions()
	if err != nil {
		return fmt.Errorf("load target positions: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no target positions stored")
	}

	dateStr := today.Format("20060102")
	target := storage.SelectForDate(rows, dateStr)
	if len(target) == 0 {
		return fmt.Errorf("no target allocation available for %s", dateStr)
	}
	if target[0].Date != dateStr {
		r.logger.Warn("no allocation for today, using most recent",
			"today", dateStr, "using", target[0].Date)
	}
	r.logger.Info("target allocation selected", "date", target[0].Date, "stocks", len(target))

	// CONNECT
	if err := r.gateway.Connect(); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	// SNAPSHOT: account and holdings are taken pre-open; the computation
	// below deliberately uses this pre-open total_asset
	account, err := r.gateway.GetAccountSnapshot()
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}
	holdings, err := r.gateway.GetCurrentHoldings()
	if err != nil {
		return fmt.Errorf("query holdings: %w", err)
	}

	// WAIT_OPEN
	if err := r.waitUntilOpen(ctx); err != nil {
		return fmt.Errorf("wait for open: %w", err)
	}

	// COMPUTE
	weights := make([]trader.TargetWeight, 0, len(target))
	for _, row := range target {
		weights = append(weights, trader.TargetWeight{StockCode: row.StockCode, Weight: row.Weight})
	}
	plan, err := r.engine.ComputeTargetVolumes(weights, account.TotalAsset)
	if err != nil {
		return fmt.Errorf("compute target volumes: %w", err)
	}
	// An empty plan is valid at the engine contract, but nothing to trade
	// against a full target set means the quotes are unusable: refuse to run.
	if len(plan) == 0 {
		return fmt.Errorf("computed target plan is empty")
	}

	r.logTradePlan(plan, holdings)

	// EXECUTE
	if err := r.engine.ExecuteRebalance(ctx, plan, holdings); err != nil {
		return fmt.Errorf("execute rebalance: %w", err)
	}
	return nil
}

// waitUntilOpen suspends until the configured open time: 30-second naps
// while more than a minute remains, then one sleep for the exact remainder.
// Context cancellation interrupts the wait.
func (r *Runner) waitUntilOpen(ctx context.Context) error {
	hour, minute, err := config.ParseClock(r.cfg.Trading.OpenTime)
	if err != nil {
		return fmt.Errorf("parse open time: %w", err)
	}

	for {
		now := r.now()
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		remaining := target.Sub(now)
		if remaining <= 0 {
			return nil
		}
		if remaining > time.Minute {
			r.logger.Info("waiting for market open", "remaining", remaining.Round(time.Second))
			if err := sleepCtx(ctx, 30*time.Second); err != nil {
				return err
			}
			continue
		}
		r.logger.Info("market opens shortly", "remaining", remaining.Round(time.Second))
		return sleepCtx(ctx, remaining)
	}
}

func (r *Runner) logTradePlan(plan map[string]int64, holdings map[string]broker.PositionHolding) {
	r.logger.Info("trade plan preview")
	for code, pos := range holdings {
		if target := plan[code]; pos.CanUseVolume > target {
			r.logger.Info("plan: sell", "stock_code", code,
				"current", pos.CanUseVolume, "target", target, "volume", pos.CanUseVolume-target)
		}
	}
	for code, target := range plan {
		if current := holdings[code].CanUseVolume; target > current {
			r.logger.Info("plan: buy", "stock_code", code,
				"current", current, "target", target, "volume", target-current)
		}
	}
}

// ExecuteValueRecording runs the end-of-day snapshot, gated on the calendar
// like the trading phase.
func (r *Runner) ExecuteValueRecording(ctx context.Context) error {
	today := r.now()
	r.logger.Info("value recording triggered", "date", today.Format("20060102"))

	if !r.calendar.IsTradingDay(today) {
		r.logger.Info("not a trading day, skipping value recording")
		return nil
	}

	if err := r.recorder.Record(ctx); err != nil {
		r.logger.Error("value recording failed", "error", err)
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
