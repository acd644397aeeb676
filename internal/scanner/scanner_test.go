package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/types"
)

type fakePort struct {
	markets    []types.Market
	books      map[string]types.OrderBook
	failBooks  map[string]bool
	listErr    error
	bookCalls  int32
	listCalls  int32
}

func (f *fakePort) ListOpenMarkets(_ context.Context, _ int) ([]types.Market, error) {
	atomic.AddInt32(&f.listCalls, 1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.markets, nil
}

func (f *fakePort) GetOrderBook(_ context.Context, ticker string) (types.OrderBook, bool, error) {
	atomic.AddInt32(&f.bookCalls, 1)
	if f.failBooks[ticker] {
		return types.OrderBook{}, false, errors.New("book fetch error")
	}
	book, ok := f.books[ticker]
	return book, ok, nil
}

func (f *fakePort) GetPortfolio(_ context.Context) (types.PortfolioSnapshot, error) {
	return types.PortfolioSnapshot{}, nil
}
func (f *fakePort) SubmitOrder(_ context.Context, _ types.OrderRequest) (*types.OrderResult, error) {
	return nil, nil
}
func (f *fakePort) CancelOrder(_ context.Context, _ string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScanFiltersAndRanks(t *testing.T) {
	t.Parallel()
	port := &fakePort{
		markets: []types.Market{
			{Ticker: "LOWVOL", Status: types.StatusOpen, Volume: 50, OpenInterest: 1000},
			{Ticker: "CLOSED", Status: types.StatusClosed, Volume: 5000, OpenInterest: 5000},
			{Ticker: "B", Status: types.StatusOpen, Volume: 1000, OpenInterest: 200},
			{Ticker: "A", Status: types.StatusOpen, Volume: 1000, OpenInterest: 200},
			{Ticker: "C", Status: types.StatusOpen, Volume: 1000, OpenInterest: 300},
		},
		books: map[string]types.OrderBook{
			"A": {Ticker: "A"},
			"B": {Ticker: "B"},
			"C": {Ticker: "C"},
		},
		failBooks: map[string]bool{},
	}

	s := New(port, cache.New[[]types.Market](time.Minute, 10), cache.New[cache.MarketSnapshot](time.Minute, 200), 20, 50, testLogger())
	snaps, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3 (LOWVOL and CLOSED filtered out): %+v", len(snaps), snaps)
	}
	if snaps[0].Market.Ticker != "C" {
		t.Fatalf("expected highest open-interest first, got %s", snaps[0].Market.Ticker)
	}
	if snaps[1].Market.Ticker != "A" || snaps[2].Market.Ticker != "B" {
		t.Fatalf("expected tie broken by ticker ascending, got %s then %s", snaps[1].Market.Ticker, snaps[2].Market.Ticker)
	}
}

func TestScanDropsFailedBookFetchesNonFatally(t *testing.T) {
	t.Parallel()
	port := &fakePort{
		markets: []types.Market{
			{Ticker: "A", Status: types.StatusOpen, Volume: 1000, OpenInterest: 200},
			{Ticker: "B", Status: types.StatusOpen, Volume: 1000, OpenInterest: 300},
		},
		books:     map[string]types.OrderBook{"A": {Ticker: "A"}},
		failBooks: map[string]bool{"B": true},
	}

	s := New(port, cache.New[[]types.Market](time.Minute, 10), cache.New[cache.MarketSnapshot](time.Minute, 200), 20, 50, testLogger())
	snaps, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Market.Ticker != "A" {
		t.Fatalf("expected only A to survive, got %+v", snaps)
	}
}

func TestScanFailsWholeCycleOnListError(t *testing.T) {
	t.Parallel()
	port := &fakePort{listErr: errors.New("list failed")}

	s := New(port, cache.New[[]types.Market](time.Minute, 10), cache.New[cache.MarketSnapshot](time.Minute, 200), 20, 50, testLogger())
	_, err := s.Scan(context.Background())
	if err == nil {
		t.Fatal("expected error when ListOpenMarkets fails")
	}
}

func TestScanUsesMarketListCache(t *testing.T) {
	t.Parallel()
	port := &fakePort{
		markets: []types.Market{{Ticker: "A", Status: types.StatusOpen, Volume: 1000, OpenInterest: 200}},
		books:   map[string]types.OrderBook{"A": {Ticker: "A"}},
	}

	marketCache := cache.New[[]types.Market](time.Minute, 10)
	s := New(port, marketCache, cache.New[cache.MarketSnapshot](time.Minute, 200), 20, 50, testLogger())

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if port.listCalls != 1 {
		t.Fatalf("ListOpenMarkets called %d times, want 1 (second should hit cache)", port.listCalls)
	}
}
