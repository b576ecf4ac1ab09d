package trader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/logger"
)

// fakeGateway records every call in order so tests can assert the sell
// phase completes before the buy phase starts.
type fakeGateway struct {
	quotes    map[string]broker.Quote
	quotesErr error

	openOrders []broker.OpenOrder
	listErr    error
	listCalls  int

	events []string
}

func (f *fakeGateway) Connect() error { return nil }

func (f *fakeGateway) GetAccountSnapshot() (*broker.AccountSnapshot, error) {
	return &broker.AccountSnapshot{}, nil
}

func (f *fakeGateway) GetCurrentHoldings() (map[string]broker.PositionHolding, error) {
	return nil, nil
}

func (f *fakeGateway) GetQuotes(stockCodes []string) (map[string]broker.Quote, error) {
	f.events = append(f.events, fmt.Sprintf("quotes:%d", len(stockCodes)))
	if f.quotesErr != nil {
		return nil, f.quotesErr
	}
	out := make(map[string]broker.Quote)
	for _, code := range stockCodes {
		if q, ok := f.quotes[code]; ok {
			out[code] = q
		}
	}
	return out, nil
}

func (f *fakeGateway) SubmitOrder(stockCode string, side broker.Side, volume int64, limitPrice float64) (string, error) {
	f.events = append(f.events, fmt.Sprintf("order:%s:%s:%d:%.2f", side, stockCode, volume, limitPrice))
	return fmt.Sprintf("oid-%d", len(f.events)), nil
}

func (f *fakeGateway) ListOpenOrders() ([]broker.OpenOrder, error) {
	f.listCalls++
	f.events = append(f.events, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.openOrders, nil
}

func quoteWithAsk3(price float64) broker.Quote {
	var q broker.Quote
	q.AskPrices[2] = price
	return q
}

func newTestEngine(gw broker.Gateway) *Engine {
	return NewEngine(gw, Config{
		FillWait:     50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, logger.New("error"))
}

func TestComputeTargetVolumesRoundsToHundred(t *testing.T) {
	gw := &fakeGateway{quotes: map[string]broker.Quote{
		"600000.SH": quoteWithAsk3(10.0),
		"000001.SZ": quoteWithAsk3(33.33),
	}}
	e := newTestEngine(gw)

	plan, err := e.ComputeTargetVolumes([]TargetWeight{
		{StockCode: "600000.SH", Weight: 0.5},
		{StockCode: "000001.SZ", Weight: 0.5},
	}, 1_000_000)

	require.NoError(t, err)
	assert.Equal(t, int64(50000), plan["600000.SH"])
	assert.Equal(t, int64(15000), plan["000001.SZ"])
	for code, volume := range plan {
		assert.Zero(t, volume%100, "volume for %s must be a multiple of 100", code)
	}
}

func TestComputeTargetVolumesHalfRoundsUp(t *testing.T) {
	gw := &fakeGateway{quotes: map[string]broker.Quote{
		"600000.SH": quoteWithAsk3(100.0),
	}}
	e := newTestEngine(gw)

	// 15000 / 100 = 150 shares = 1.5 lots, rounds away from zero to 200.
	plan, err := e.ComputeTargetVolumes([]TargetWeight{
		{StockCode: "600000.SH", Weight: 1.0},
	}, 15000)

	require.NoError(t, err)
	assert.Equal(t, int64(200), plan["600000.SH"])
}

func TestComputeTargetVolumesSkipsUnusableQuotes(t *testing.T) {
	gw := &fakeGateway{quotes: map[string]broker.Quote{
		"600000.SH": quoteWithAsk3(10.0),
		"300750.SZ": quoteWithAsk3(0), // published but empty level
	}}
	e := newTestEngine(gw)

	plan, err := e.ComputeTargetVolumes([]TargetWeight{
		{StockCode: "600000.SH", Weight: 0.4},
		{StockCode: "300750.SZ", Weight: 0.3},
		{StockCode: "999999.SZ", Weight: 0.3}, // no quote at all
	}, 1_000_000)

	require.NoError(t, err)
	assert.Len(t, plan, 1)
	assert.Contains(t, plan, "600000.SH")
}

func TestComputeTargetVolumesFailsOnQuoteError(t *testing.T) {
	gw := &fakeGateway{quotesErr: errors.New("bridge down")}
	e := newTestEngine(gw)

	plan, err := e.ComputeTargetVolumes([]TargetWeight{
		{StockCode: "600000.SH", Weight: 1.0},
	}, 1_000_000)

	assert.Error(t, err)
	assert.Nil(t, plan)
}

func TestDiffPositionsPartition(t *testing.T) {
	plan := map[string]int64{
		"600000.SH": 300, // held 100, buy 200
		"000001.SZ": 0,   // held 200, sell 200
		"600519.SH": 100, // not held, buy 100
		"002594.SZ": 500, // held exactly, no order
	}
	holdings := map[string]broker.PositionHolding{
		"600000.SH": {StockCode: "600000.SH", CanUseVolume: 100},
		"000001.SZ": {StockCode: "000001.SZ", CanUseVolume: 200},
		"002594.SZ": {StockCode: "002594.SZ", CanUseVolume: 500},
		"601318.SH": {StockCode: "601318.SH", CanUseVolume: 400}, // not in plan, full exit
	}

	sells, buys := diffPositions(plan, holdings)

	assert.Equal(t, []orderIntent{
		{stockCode: "000001.SZ", volume: 200},
		{stockCode: "601318.SH", volume: 400},
	}, sells)
	assert.Equal(t, []orderIntent{
		{stockCode: "600000.SH", volume: 200},
		{stockCode: "600519.SH", volume: 100},
	}, buys)

	sold := make(map[string]bool)
	for _, it := range sells {
		sold[it.stockCode] = true
	}
	for _, it := range buys {
		assert.False(t, sold[it.stockCode], "%s in both phases", it.stockCode)
	}
}

func TestExecuteRebalanceSellsBeforeBuys(t *testing.T) {
	var q broker.Quote
	q.AskPrices = [5]float64{10.0, 10.1, 10.2, 10.3, 10.4}
	q.BidPrices = [5]float64{9.9, 9.8, 9.7, 9.6, 9.5}

	gw := &fakeGateway{quotes: map[string]broker.Quote{
		"600000.SH": q,
		"000001.SZ": q,
	}}
	e := newTestEngine(gw)

	plan := map[string]int64{"600000.SH": 300, "000001.SZ": 0}
	holdings := map[string]broker.PositionHolding{
		"600000.SH": {StockCode: "600000.SH", CanUseVolume: 100},
		"000001.SZ": {StockCode: "000001.SZ", CanUseVolume: 200},
	}

	err := e.ExecuteRebalance(context.Background(), plan, holdings)
	require.NoError(t, err)

	// Sells at bid-5, then a fill wait, then buys at ask-5.
	assert.Equal(t, []string{
		"quotes:1",
		"order:SELL:000001.SZ:200:9.50",
		"list",
		"quotes:1",
		"order:BUY:600000.SH:200:10.40",
		"list",
	}, gw.events)
}

func TestExecuteRebalanceSplitsStarMarketOrders(t *testing.T) {
	var q broker.Quote
	q.AskPrices = [5]float64{50, 50, 50, 50, 50.5}

	gw := &fakeGateway{quotes: map[string]broker.Quote{"688111.SH": q}}
	e := newTestEngine(gw)

	plan := map[string]int64{"688111.SH": 250000}
	err := e.ExecuteRebalance(context.Background(), plan, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"quotes:1",
		"order:BUY:688111.SH:100000:50.50",
		"order:BUY:688111.SH:100000:50.50",
		"order:BUY:688111.SH:50000:50.50",
		"list",
	}, gw.events)
}

func TestIsStarMarket(t *testing.T) {
	e := newTestEngine(&fakeGateway{})

	assert.True(t, e.isStarMarket("688111.SH"))
	assert.False(t, e.isStarMarket("600000.SH"))
	assert.False(t, e.isStarMarket("688111.SZ"))
	assert.False(t, e.isStarMarket("300688.SZ"))
}

func TestWaitForFillsReturnsOnceFilled(t *testing.T) {
	gw := &fakeGateway{openOrders: []broker.OpenOrder{
		{StockCode: "600000.SH", OrderedVolume: 100, TradedVolume: 100},
	}}
	e := newTestEngine(gw)

	err := e.waitForFills(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gw.listCalls)
}

func TestWaitForFillsTimesOut(t *testing.T) {
	gw := &fakeGateway{openOrders: []broker.OpenOrder{
		{StockCode: "600000.SH", OrderedVolume: 1000, TradedVolume: 500},
	}}
	e := newTestEngine(gw)

	err := e.waitForFills(context.Background())
	assert.Error(t, err)
	// ~5 polls at a 10ms interval inside a 50ms ceiling, plus the final
	// outstanding-order query. Leave slack for scheduler jitter.
	assert.GreaterOrEqual(t, gw.listCalls, 3)
	assert.LessOrEqual(t, gw.listCalls, 8)
}

func TestWaitForFillsToleratesQueryErrors(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("bridge hiccup")}
	e := newTestEngine(gw)

	err := e.waitForFills(context.Background())
	assert.Error(t, err)
	assert.GreaterOrEqual(t, gw.listCalls, 3, "errors must not abort the wait")
}

func TestWaitForFillsStopsOnContextCancel(t *testing.T) {
	gw := &fakeGateway{openOrders: []broker.OpenOrder{
		{StockCode: "600000.SH", OrderedVolume: 1000, TradedVolume: 0},
	}}
	e := NewEngine(gw, Config{
		FillWait:     time.Hour,
		PollInterval: 10 * time.Millisecond,
	}, logger.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := e.waitForFills(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
