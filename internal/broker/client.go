package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minqt/weight-sync/internal/config"
	"github.com/minqt/weight-sync/internal/logger"
)

// Client talks to the QMT terminal bridge, a local sidecar that exposes the
// trading terminal over HTTP/JSON. It implements Gateway.
type Client struct {
	baseURL    string
	accountID  string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Broker.BridgeURL, "/"),
		accountID:  cfg.Broker.AccountID,
		httpClient: &http.Client{Timeout: cfg.BrokerTimeout()},
		logger:     log,
	}
}

type connectResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) Connect() error {
	payload := map[string]string{"account_id": c.accountID}
	var resp connectResponse
	if err := c.post("/api/v1/connect", payload, &resp); err != nil {
		return fmt.Errorf("connect account: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("connect account: bridge refused: %s", resp.Error)
	}
	c.logger.Info("broker session connected", "account_id", c.accountID)
	return nil
}

type assetResponse struct {
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	MarketValue float64 `json:"market_value"`
	FrozenCash  float64 `json:"frozen_cash"`
}

func (c *Client) GetAccountSnapshot() (*AccountSnapshot, error) {
	var resp assetResponse
	if err := c.get("/api/v1/asset", nil, &resp); err != nil {
		return nil, fmt.Errorf("query account asset: %w", err)
	}
	snap := &AccountSnapshot{
		TotalAsset:  resp.TotalAsset,
		Cash:        resp.Cash,
		MarketValue: resp.MarketValue,
		FrozenCash:  resp.FrozenCash,
	}
	c.logger.Info("account snapshot",
		"total_asset", snap.TotalAsset, "cash", snap.Cash,
		"market_value", snap.MarketValue, "frozen_cash", snap.FrozenCash)
	return snap, nil
}

type positionRow struct {
	StockCode    string  `json:"stock_code"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"can_use_volume"`
	AvgPrice     float64 `json:"avg_price"`
	MarketValue  float64 `json:"market_value"`
}

func (c *Client) GetCurrentHoldings() (map[string]PositionHolding, error) {
	var rows []positionRow
	if err := c.get("/api/v1/positions", nil, &rows); err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}

	holdings := make(map[string]PositionHolding, len(rows))
	filtered := 0
	for _, row := range rows {
		// Non-positive volumes are broker data anomalies, not real holdings.
		if row.Volume <= 0 {
			c.logger.Warn("dropping anomalous holding",
				"stock_code", row.StockCode,
				"volume", row.Volume, "can_use_volume", row.CanUseVolume)
			filtered++
			continue
		}
		holdings[row.StockCode] = PositionHolding{
			StockCode:    row.StockCode,
			Volume:       row.Volume,
			CanUseVolume: row.CanUseVolume,
			AvgPrice:     row.AvgPrice,
			MarketValue:  row.MarketValue,
		}
	}
	if filtered > 0 {
		c.logger.Info("filtered anomalous holdings", "count", filtered)
	}
	c.logger.Info("current holdings", "count", len(holdings))
	return holdings, nil
}

type tickRow struct {
	AskPrices []float64 `json:"ask_price"`
	BidPrices []float64 `json:"bid_price"`
}

func (c *Client) GetQuotes(stockCodes []string) (map[string]Quote, error) {
	params := url.Values{"codes": {strings.Join(stockCodes, ",")}}
	var rows map[string]tickRow
	if err := c.get("/api/v1/tick", params, &rows); err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}

	quotes := make(map[string]Quote, len(rows))
	for code, row := range rows {
		var q Quote
		copy(q.AskPrices[:], row.AskPrices)
		copy(q.BidPrices[:], row.BidPrices)
		quotes[code] = q
	}
	return quotes, nil
}

type orderRequest struct {
	AccountID string  `json:"account_id"`
	StockCode string  `json:"stock_code"`
	Side      string  `json:"side"`
	Volume    int64   `json:"volume"`
	Price     float64 `json:"price"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

func (c *Client) SubmitOrder(stockCode string, side Side, volume int64, limitPrice float64) (string, error) {
	req := orderRequest{
		AccountID: c.accountID,
		StockCode: stockCode,
		Side:      string(side),
		Volume:    volume,
		Price:     limitPrice,
	}
	var resp orderResponse
	if err := c.post("/api/v1/order", req, &resp); err != nil {
		return "", fmt.Errorf("submit %s order %s: %w", side, stockCode, err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("submit %s order %s: bridge rejected: %s", side, stockCode, resp.Error)
	}
	return resp.OrderID, nil
}

type openOrderRow struct {
	StockCode     string `json:"stock_code"`
	OrderedVolume int64  `json:"order_volume"`
	TradedVolume  int64  `json:"traded_volume"`
}

func (c *Client) ListOpenOrders() ([]OpenOrder, error) {
	var rows []openOrderRow
	if err := c.get("/api/v1/orders/open", nil, &rows); err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	orders := make([]OpenOrder, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, OpenOrder{
			StockCode:     row.StockCode,
			OrderedVolume: row.OrderedVolume,
			TradedVolume:  row.TradedVolume,
		})
	}
	return orders, nil
}

func (c *Client) get(path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("account_id", c.accountID)

	resp, err := c.httpClient.Get(c.baseURL + path + "?" + params.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
