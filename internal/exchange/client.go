package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/types"
)

// Client is the live CLOB REST API adapter. It implements Port over a
// resty HTTP client with rate limiting, retry, and L1/L2 signing.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	logger *slog.Logger
}

// NewClient builds a live Client. If auth has no L2 credentials configured,
// callers should call DeriveAPIKey once before trading.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Exchange.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// POST /orders is never retried, keeping submission at-most-once.
			if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
				return false
			}
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		logger: logger,
	}
}

// wire DTOs for the REST surface. Kept private to this file — the rest of
// the core only ever sees internal/types values.

type marketDTO struct {
	Ticker       string `json:"ticker"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
}

type marketsResponseDTO struct {
	Markets []marketDTO `json:"markets"`
}

type priceSideDTO struct {
	Bid     int `json:"bid"`
	Ask     int `json:"ask"`
	BidSize int `json:"bid_size"`
	AskSize int `json:"ask_size"`
}

type bookDTO struct {
	Ticker string       `json:"ticker"`
	Yes    priceSideDTO `json:"yes"`
	No     priceSideDTO `json:"no"`
}

type positionDTO struct {
	Ticker        string `json:"ticker"`
	Quantity      int    `json:"quantity"`
	EntryPrice    int    `json:"entry_price"`
	CurrentPrice  int    `json:"current_price"`
	UnrealizedPnL int    `json:"unrealized_pnl"`
}

type portfolioDTO struct {
	Cash       int           `json:"cash"`
	Equity     int           `json:"equity"`
	DailyPnL   int           `json:"daily_pnl"`
	Positions  []positionDTO `json:"positions"`
	PeakEquity int           `json:"peak_equity"`
}

type orderRequestDTO struct {
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Price         int    `json:"price"`
	MakerAmount   string `json:"maker_amount"`
	TakerAmount   string `json:"taker_amount"`
	Kind          string `json:"kind"`
	SignatureType int    `json:"signature_type"`
}

type orderResponseDTO struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	FillPrice int    `json:"fill_price"`
	FillQty   int    `json:"fill_qty"`
	Error     string `json:"error,omitempty"`
}

// ListOpenMarkets fetches the current open-market list.
func (c *Client) ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result marketsResponseDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("status", "open").
		SetResult(&result).
		Get("/markets")
	if err != nil {
		return nil, wrapTransport("list_open_markets", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapTransport("list_open_markets", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	markets := make([]types.Market, 0, len(result.Markets))
	for _, m := range result.Markets {
		markets = append(markets, types.Market{
			Ticker:       m.Ticker,
			Title:        m.Title,
			Status:       types.MarketStatus(m.Status),
			Volume:       m.Volume,
			OpenInterest: m.OpenInterest,
		})
	}
	return markets, nil
}

// GetOrderBook fetches the order book for one ticker.
func (c *Client) GetOrderBook(ctx context.Context, ticker string) (types.OrderBook, bool, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.OrderBook{}, false, err
	}

	var result bookDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ticker", ticker).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return types.OrderBook{}, false, wrapTransport("get_order_book", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return types.OrderBook{}, false, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBook{}, false, wrapTransport("get_order_book", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	book := types.OrderBook{
		Ticker: ticker,
		Yes: types.PriceSide{
			Bid: result.Yes.Bid, Ask: result.Yes.Ask,
			BidSize: result.Yes.BidSize, AskSize: result.Yes.AskSize,
		},
		No: types.PriceSide{
			Bid: result.No.Bid, Ask: result.No.Ask,
			BidSize: result.No.BidSize, AskSize: result.No.AskSize,
		},
		Timestamp: time.Now(),
	}
	return book, true, nil
}

// GetPortfolio fetches the current account snapshot.
func (c *Client) GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error) {
	if err := c.rl.Portfolio.Wait(ctx); err != nil {
		return types.PortfolioSnapshot{}, err
	}

	headers, err := c.auth.L2Headers(http.MethodGet, "/portfolio", "")
	if err != nil {
		return types.PortfolioSnapshot{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result portfolioDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/portfolio")
	if err != nil {
		return types.PortfolioSnapshot{}, wrapTransport("get_portfolio", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.PortfolioSnapshot{}, wrapTransport("get_portfolio", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	positions := make(map[string]types.Position, len(result.Positions))
	for _, p := range result.Positions {
		positions[p.Ticker] = types.Position{
			Ticker:        p.Ticker,
			Quantity:      p.Quantity,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnL: p.UnrealizedPnL,
		}
	}

	peak := result.PeakEquity
	if peak < result.Equity {
		peak = result.Equity
	}
	drawdown := 0.0
	if peak > 0 {
		drawdown = float64(peak-result.Equity) / float64(peak) * 100
		if drawdown < 0 {
			drawdown = 0
		}
	}

	return types.PortfolioSnapshot{
		Cash:        result.Cash,
		Equity:      result.Equity,
		DailyPnL:    result.DailyPnL,
		Positions:   positions,
		PeakEquity:  peak,
		DrawdownPct: drawdown,
	}, nil
}

// SubmitOrder signs and places a single order. Every order this core
// submits is a buy of the requested side's token — closing a position is
// expressed the same way, by the Risk Gate sizing a trade on the opposite
// side, not by a distinct sell action.
func (c *Client) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	makerAmt, takerAmt := PriceToAmounts(req.Price, req.Quantity)

	payload := orderRequestDTO{
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		Ticker:        req.Ticker,
		Side:          string(req.Side),
		Price:         req.Price,
		MakerAmount:   makerAmt.String(),
		TakerAmount:   takerAmt.String(),
		Kind:          string(req.Kind),
		SignatureType: int(c.auth.sigType),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers(http.MethodPost, "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result orderResponseDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return nil, wrapTransport("submit_order", err)
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("submit_order: %w", errs.ErrRateLimited)
	case resp.StatusCode() >= 500:
		return nil, wrapTransport("submit_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	case resp.StatusCode() >= 400:
		return nil, fmt.Errorf("submit_order: %w: status %d: %s", errs.ErrPermanent, resp.StatusCode(), resp.String())
	}
	if !result.Success {
		return nil, fmt.Errorf("submit_order: %w: %s", errs.ErrPermanent, result.Error)
	}

	return &types.OrderResult{
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice,
		FillQty:   result.FillQty,
	}, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	headers, err := c.auth.L2Headers(http.MethodDelete, "/orders", "")
	if err != nil {
		return fmt.Errorf("l2 headers: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]string{"order_id": orderID}).
		Delete("/orders")
	if err != nil {
		return wrapTransport("cancel_order", err)
	}
	if resp.StatusCode() >= 500 {
		return wrapTransport("cancel_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("cancel_order: %w: status %d: %s", errs.ErrPermanent, resp.StatusCode(), resp.String())
	}
	return nil
}

// DeriveAPIKey bootstraps L2 credentials from the L1 wallet signature. Call
// once at startup in live mode when config does not pre-supply credentials.
func (c *Client) DeriveAPIKey(ctx context.Context) (Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return Credentials{}, fmt.Errorf("l1 headers: %w", err)
	}

	var creds Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&creds).
		Get("/auth/derive-api-key")
	if err != nil {
		return Credentials{}, wrapTransport("derive_api_key", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Credentials{}, wrapTransport("derive_api_key", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	c.auth.SetCredentials(creds)
	c.logger.Info("API key derived", "api_key", creds.ApiKey)
	return creds, nil
}
