// Package trader turns a target weight allocation into orders: it computes
// target share counts from live quotes, diffs them against current holdings
// and works the resulting sell list to completion before touching the buy
// list, so freed cash is available when the buys go out.
package trader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/logger"
)

const (
	defaultFillWait     = 300 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultSplitLimit   = 100000
	defaultStarPrefix   = "688"
	defaultStarSuffix   = ".SH"
)

// TargetWeight is one row of the target allocation. Weights for a rebalance
// date sum to 1.0; normalization happens at import time.
type TargetWeight struct {
	StockCode string
	Weight    float64
}

// Config tunes the engine. Zero values fall back to the reference defaults.
type Config struct {
	FillWait     time.Duration
	PollInterval time.Duration
	SplitLimit   int64
	StarPrefix   string
	StarSuffix   string
}

type Engine struct {
	gateway broker.Gateway
	cfg     Config
	logger  *logger.Logger
}

func NewEngine(gw broker.Gateway, cfg Config, log *logger.Logger) *Engine {
	if cfg.FillWait == 0 {
		cfg.FillWait = defaultFillWait
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SplitLimit == 0 {
		cfg.SplitLimit = defaultSplitLimit
	}
	if cfg.StarPrefix == "" {
		cfg.StarPrefix = defaultStarPrefix
	}
	if cfg.StarSuffix == "" {
		cfg.StarSuffix = defaultStarSuffix
	}
	return &Engine{gateway: gw, cfg: cfg, logger: log}
}

// ComputeTargetVolumes converts weights into share counts: target market
// value is totalAsset × weight, priced at the ask-3 level and rounded to the
// nearest 100 shares. The batch quote call failing fails the whole pass; a
// single stock without a usable quote is dropped and logged. The returned
// plan may be smaller than the input, or empty.
func (e *Engine) ComputeTargetVolumes(weights []TargetWeight, totalAsset float64) (map[string]int64, error) {
	e.logger.Info("computing target volumes", "total_asset", totalAsset, "stocks", len(weights))

	codes := make([]string, 0, len(weights))
	for _, w := range weights {
		codes = append(codes, w.StockCode)
	}

	quotes, err := e.gateway.GetQuotes(codes)
	if err != nil {
		return nil, fmt.Errorf("fetch quote snapshot: %w", err)
	}

	plan := make(map[string]int64, len(weights))
	for _, w := range weights {
		quote, ok := quotes[w.StockCode]
		if !ok {
			e.logger.Warn("no quote for stock, skipping", "stock_code", w.StockCode)
			continue
		}

		price := quote.AskPrices[2]
		if price == 0 {
			e.logger.Warn("ask-3 price is zero, skipping", "stock_code", w.StockCode)
			continue
		}

		targetValue := totalAsset * w.Weight
		volume := roundToHundred(targetValue / price)
		plan[w.StockCode] = volume
		e.logger.Info("target volume",
			"stock_code", w.StockCode, "weight", w.Weight,
			"target_value", targetValue, "ask3", price, "volume", volume)
	}

	return plan, nil
}

// roundToHundred rounds to the nearest 100 shares, half away from zero.
func roundToHundred(volume float64) int64 {
	return int64(math.Round(volume/100)) * 100
}

type orderIntent struct {
	stockCode string
	volume    int64
}

// diffPositions partitions the current-vs-target comparison into a sell list
// and a buy list. Both compare can_use_volume against the planned volume, so
// a stock lands in at most one of the two.
func diffPositions(plan map[string]int64, holdings map[string]broker.PositionHolding) (sells, buys []orderIntent) {
	for _, code := range sortedKeys(holdings) {
		current := holdings[code].CanUseVolume
		target := plan[code]
		if current > target {
			sells = append(sells, orderIntent{stockCode: code, volume: current - target})
		}
	}
	for _, code := range sortedKeysInt(plan) {
		target := plan[code]
		current := holdings[code].CanUseVolume
		if target > current {
			buys = append(buys, orderIntent{stockCode: code, volume: target - current})
		}
	}
	return sells, buys
}

// ExecuteRebalance runs one sell-then-buy pass. Each non-empty phase
// batch-fetches quotes, submits limit orders at the deepest published level
// and blocks until every order fills or the wait ceiling passes. A timeout
// aborts the pass without cancelling whatever is still outstanding; those
// orders are logged and left to the operator.
func (e *Engine) ExecuteRebalance(ctx context.Context, plan map[string]int64, holdings map[string]broker.PositionHolding) error {
	sells, buys := diffPositions(plan, holdings)
	for _, it := range sells {
		e.logger.Info("plan sell", "stock_code", it.stockCode,
			"current", holdings[it.stockCode].CanUseVolume, "target", plan[it.stockCode], "volume", it.volume)
	}
	for _, it := range buys {
		e.logger.Info("plan buy", "stock_code", it.stockCode,
			"current", holdings[it.stockCode].CanUseVolume, "target", plan[it.stockCode], "volume", it.volume)
	}

	if len(sells) > 0 {
		e.logger.Info("starting sell phase", "orders", len(sells))
		if err := e.executePhase(ctx, broker.Sell, sells); err != nil {
			return fmt.Errorf("sell phase: %w", err)
		}
	}

	if len(buys) > 0 {
		e.logger.Info("starting buy phase", "orders", len(buys))
		if err := e.executePhase(ctx, broker.Buy, buys); err != nil {
			return fmt.Errorf("buy phase: %w", err)
		}
	}

	e.logger.Info("rebalance pass completed")
	return nil
}

func (e *Engine) executePhase(ctx context.Context, side broker.Side, intents []orderIntent) error {
	codes := make([]string, 0, len(intents))
	for _, it := range intents {
		codes = append(codes, it.stockCode)
	}

	quotes, err := e.gateway.GetQuotes(codes)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}

	for _, it := range intents {
		quote, ok := quotes[it.stockCode]
		if !ok {
			e.logger.Warn("no quote, skipping order", "side", side, "stock_code", it.stockCode)
			continue
		}

		// Sells rest at the bid-5 level, buys at the ask-5 level: deep enough
		// to fill against the visible book in one shot.
		var price float64
		if side == broker.Sell {
			price = quote.BidPrices[4]
		} else {
			price = quote.AskPrices[4]
		}
		if price == 0 {
			e.logger.Warn("level-5 price is zero, skipping order", "side", side, "stock_code", it.stockCode)
			continue
		}

		volumes := []int64{it.volume}
		if e.isStarMarket(it.stockCode) {
			volumes = splitOrderVolume(it.volume, e.cfg.SplitLimit)
			if len(volumes) > 1 {
				e.logger.Info("splitting STAR-market order",
					"stock_code", it.stockCode, "total", it.volume, "parts", len(volumes))
			}
		}

		for i, volume := range volumes {
			orderID, err := e.gateway.SubmitOrder(it.stockCode, side, volume, price)
			if err != nil {
				e.logger.Error("submit order failed",
					"side", side, "stock_code", it.stockCode, "volume", volume, "error", err)
				continue
			}
			e.logger.Info("order submitted",
				"side", side, "stock_code", it.stockCode, "part", i+1,
				"volume", volume, "price", price, "order_id", orderID)
		}
	}

	e.logger.Info("waiting for fills", "side", side)
	return e.waitForFills(ctx)
}

// isStarMarket reports whether the stock trades on the restricted segment
// that caps single limit orders (688-prefixed Shanghai listings).
func (e *Engine) isStarMarket(stockCode string) bool {
	return len(stockCode) >= len(e.cfg.StarPrefix)+len(e.cfg.StarSuffix) &&
		stockCode[:len(e.cfg.StarPrefix)] == e.cfg.StarPrefix &&
		stockCode[len(stockCode)-len(e.cfg.StarSuffix):] == e.cfg.StarSuffix
}

// waitForFills polls today's open orders until everything is filled or the
// ceiling passes. Query errors do not abort the wait; the order state is
// re-read on the next tick.
func (e *Engine) waitForFills(ctx context.Context) error {
	start := time.Now()
	for time.Since(start) < e.cfg.FillWait {
		orders, err := e.gateway.ListOpenOrders()
		if err != nil {
			e.logger.Error("query open orders", "error", err)
			if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		pending := orders[:0:0]
		for _, o := range orders {
			if o.TradedVolume < o.OrderedVolume {
				pending = append(pending, o)
			}
		}
		if len(pending) == 0 {
			e.logger.Info("all orders filled")
			return nil
		}

		for _, o := range pending {
			e.logger.Info("order pending",
				"stock_code", o.StockCode,
				"traded", o.TradedVolume, "ordered", o.OrderedVolume,
				"remaining", o.OrderedVolume-o.TradedVolume)
		}

		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}

	e.logOutstanding()
	return fmt.Errorf("orders not filled within %s", e.cfg.FillWait)
}

// logOutstanding records what the timeout leaves behind. Nothing is
// cancelled or reconciled here; the next run starts from a fresh snapshot.
func (e *Engine) logOutstanding() {
	orders, err := e.gateway.ListOpenOrders()
	if err != nil {
		e.logger.Warn("fill wait timed out; open-order query failed", "error", err)
		return
	}
	for _, o := range orders {
		if o.TradedVolume < o.OrderedVolume {
			e.logger.Warn("order left outstanding after timeout",
				"stock_code", o.StockCode, "traded", o.TradedVolume, "ordered", o.OrderedVolume)
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sortedKeys(m map[string]broker.PositionHolding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysInt(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
