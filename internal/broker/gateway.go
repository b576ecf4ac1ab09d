package broker

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// AccountSnapshot is the broker-reported account state. total_asset is
// approximately cash + market_value + frozen_cash; the broker's number wins.
type AccountSnapshot struct {
	TotalAsset  float64
	Cash        float64
	MarketValue float64
	FrozenCash  float64
}

// PositionHolding is one held stock. CanUseVolume is the sellable part of
// Volume (T+1 rules freeze shares bought today).
type PositionHolding struct {
	StockCode    string
	Volume       int64
	CanUseVolume int64
	AvgPrice     float64
	MarketValue  float64
}

// Quote carries the five-level order-book ladders. Index 0 is the best
// price, index 4 the deepest published level. A level with no liquidity
// reports price 0.
type Quote struct {
	AskPrices [5]float64
	BidPrices [5]float64
}

// OpenOrder is an order that the broker still considers active today.
type OpenOrder struct {
	StockCode     string
	OrderedVolume int64
	TradedVolume  int64
}

// Gateway is the contract the execution engine and the scheduler consume.
// One gateway session is owned by one run at a time.
type Gateway interface {
	Connect() error
	GetAccountSnapshot() (*AccountSnapshot, error)
	GetCurrentHoldings() (map[string]PositionHolding, error)
	GetQuotes(stockCodes []string) (map[string]Quote, error)
	SubmitOrder(stockCode string, side Side, volume int64, limitPrice float64) (string, error)
	ListOpenOrders() ([]OpenOrder, error)
}
