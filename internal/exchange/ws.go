// ws.go implements an optional WebSocket feed that keeps the Market Cache
// warm between cycles.
//
// The Scheduler's four suspension points (get_order_book, get_portfolio,
// submit_order, decide) are all request/response — nothing in the core
// cycle blocks on a stream. BookFeed exists purely so Scanner reads can hit
// a warm cache entry instead of a cold REST round trip: it subscribes to a
// set of tickers and pushes "book" and "price_change" messages, each decoded
// as a full book snapshot, onto a channel the caller drains into
// cache.Cache[cache.MarketSnapshot].
//
// The feed auto-reconnects with exponential backoff (1s -> 30s max). A read
// deadline (90s) detects a silently dead connection within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-mm/internal/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	bookBufferSize   = 256
)

// bookWSEvent is the wire shape of a full book snapshot push.
type bookWSEvent struct {
	EventType string `json:"event_type"`
	Ticker    string `json:"ticker"`
	Yes       struct {
		Bid     int `json:"bid"`
		Ask     int `json:"ask"`
		BidSize int `json:"bid_size"`
		AskSize int `json:"ask_size"`
	} `json:"yes"`
	No struct {
		Bid     int `json:"bid"`
		Ask     int `json:"ask"`
		BidSize int `json:"bid_size"`
		AskSize int `json:"ask_size"`
	} `json:"no"`
}

func (e bookWSEvent) toOrderBook() types.OrderBook {
	return types.OrderBook{
		Ticker: e.Ticker,
		Yes: types.PriceSide{
			Bid: e.Yes.Bid, Ask: e.Yes.Ask,
			BidSize: e.Yes.BidSize, AskSize: e.Yes.AskSize,
		},
		No: types.PriceSide{
			Bid: e.No.Bid, Ask: e.No.Ask,
			BidSize: e.No.BidSize, AskSize: e.No.AskSize,
		},
		Timestamp: time.Now(),
	}
}

type subscribeMsg struct {
	Operation string   `json:"operation"`
	Tickers   []string `json:"tickers"`
}

// BookFeed manages one WebSocket connection subscribed to a set of
// tickers, re-subscribing to all tracked tickers on reconnect.
type BookFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	bookCh chan types.OrderBook

	logger *slog.Logger
}

// NewBookFeed creates a feed that will connect to wsURL once Run is called.
func NewBookFeed(wsURL string, logger *slog.Logger) *BookFeed {
	return &BookFeed{
		url:        wsURL,
		subscribed: make(map[string]bool),
		bookCh:     make(chan types.OrderBook, bookBufferSize),
		logger:     logger.With("component", "book_feed"),
	}
}

// Books returns a read-only channel of book updates.
func (f *BookFeed) Books() <-chan types.OrderBook { return f.bookCh }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *BookFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("book feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe adds tickers to the feed.
func (f *BookFeed) Subscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(subscribeMsg{Operation: "subscribe", Tickers: tickers})
}

// Unsubscribe removes tickers from the feed.
func (f *BookFeed) Unsubscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		delete(f.subscribed, t)
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(subscribeMsg{Operation: "unsubscribe", Tickers: tickers})
}

// Close closes the underlying connection.
func (f *BookFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *BookFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("book feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *BookFeed) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	tickers := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		tickers = append(tickers, t)
	}
	f.subscribedMu.RUnlock()

	return f.writeJSON(subscribeMsg{Operation: "subscribe", Tickers: tickers})
}

func (f *BookFeed) dispatchMessage(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.EventType {
	case "book", "price_change":
		var evt bookWSEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal book event", "error", err)
			return
		}
		select {
		case f.bookCh <- evt.toOrderBook():
		default:
			f.logger.Warn("book channel full, dropping event", "ticker", evt.Ticker)
		}
	default:
		f.logger.Debug("ignoring ws event", "type", envelope.EventType)
	}
}

func (f *BookFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *BookFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *BookFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
