// Package recorder appends one account-value snapshot per trading day to the
// value history, feeding the dashboard's return chart.
package recorder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/storage"
)

type Recorder struct {
	gateway broker.Gateway
	repo    *storage.Repository
	logger  *logger.Logger
	now     func() time.Time
}

func New(gw broker.Gateway, repo *storage.Repository, log *logger.Logger) *Recorder {
	return &Recorder{gateway: gw, repo: repo, logger: log, now: time.Now}
}

// Record snapshots the account and stores it under today's date. A second
// call on the same date is a logged no-op, so a re-fired trigger cannot
// duplicate history.
func (r *Recorder) Record(ctx context.Context) error {
	now := r.now()
	date := now.Format("20060102")

	recorded, err := r.repo.HasValueRecord(date)
	if err != nil {
		return fmt.Errorf("check value history: %w", err)
	}
	if recorded {
		r.logger.Info("account value already recorded today", "date", date)
		return nil
	}

	if err := r.gateway.Connect(); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	snap, err := r.gateway.GetAccountSnapshot()
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}

	rec := &storage.AccountValueRecord{
		Date:        date,
		Time:        now.Format("15:04:05"),
		TotalAsset:  round2(snap.TotalAsset),
		Cash:        round2(snap.Cash),
		MarketValue: round2(snap.MarketValue),
	}
	if err := r.repo.SaveValueRecord(rec); err != nil {
		return fmt.Errorf("save value record: %w", err)
	}

	r.logger.Info("account value recorded",
		"date", rec.Date, "time", rec.Time,
		"total_asset", rec.TotalAsset, "cash", rec.Cash, "market_value", rec.MarketValue)
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
