// Package scanner implements the Scanner (C4): it discovers open markets,
// pre-filters them, fetches each one's order book with bounded concurrency,
// and hands the Scheduler a ranked list of (Market, OrderBook) snapshots.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/semaphore"

	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/types"
)

const marketsCacheKey = "markets"

// pre-filter thresholds of §4.4: a market must clear all three to be
// considered for book fetching.
const (
	minVolume       = 100
	minOpenInterest = 50
)

// Scanner discovers open markets through an Exchange Port, filters and
// ranks them, and fetches their order books with bounded concurrency.
type Scanner struct {
	port        exchange.Port
	marketCache *cache.Cache[[]types.Market]
	bookCache   *cache.Cache[cache.MarketSnapshot]
	sem         *semaphore.Weighted
	limit       int
	logger      *slog.Logger
}

// New builds a Scanner. marketCache and bookCache are typically distinct
// Cache instances (different TTLs per §4.4: 20s for the market list, 30s
// per book) but the Scanner does not own their lifetime.
func New(port exchange.Port, marketCache *cache.Cache[[]types.Market], bookCache *cache.Cache[cache.MarketSnapshot], concurrency, limit int, logger *slog.Logger) *Scanner {
	return &Scanner{
		port:        port,
		marketCache: marketCache,
		bookCache:   bookCache,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		limit:       limit,
		logger:      logger.With("component", "scanner"),
	}
}

// Scan returns a ranked list of (Market, OrderBook) snapshots for every
// open market that cleared the pre-filter and whose book fetch succeeded.
// A per-ticker book fetch failure drops that ticker and is logged, not
// fatal; a failure to list markets at all fails the whole scan so the
// Scheduler can skip the cycle.
func (s *Scanner) Scan(ctx context.Context) ([]cache.MarketSnapshot, error) {
	markets, err := s.listMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	filtered := filterMarkets(markets)
	rankMarkets(filtered)

	return s.fetchBooks(ctx, filtered), nil
}

func (s *Scanner) listMarkets(ctx context.Context) ([]types.Market, error) {
	if cached, ok := s.marketCache.Get(marketsCacheKey); ok {
		return cached, nil
	}

	markets, err := s.port.ListOpenMarkets(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	s.marketCache.Put(marketsCacheKey, markets)
	return markets, nil
}

func filterMarkets(markets []types.Market) []types.Market {
	out := make([]types.Market, 0, len(markets))
	for _, m := range markets {
		if m.Status != types.StatusOpen {
			continue
		}
		if m.Volume <= minVolume {
			continue
		}
		if m.OpenInterest <= minOpenInterest {
			continue
		}
		out = append(out, m)
	}
	return out
}

// rankMarkets sorts in place by open interest descending, ticker
// ascending as a tiebreak.
func rankMarkets(markets []types.Market) {
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].OpenInterest != markets[j].OpenInterest {
			return markets[i].OpenInterest > markets[j].OpenInterest
		}
		return markets[i].Ticker < markets[j].Ticker
	})
}

func (s *Scanner) fetchBooks(ctx context.Context, markets []types.Market) []cache.MarketSnapshot {
	results := make([]cache.MarketSnapshot, len(markets))
	present := make([]bool, len(markets))
	fetched := make([]bool, len(markets))

	done := make(chan struct{}, len(markets))
	started := 0
	for i, m := range markets {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("book fetch fan-out cancelled", "error", err)
			break
		}
		started++
		go func(i int, m types.Market) {
			defer s.sem.Release(1)
			defer func() { done <- struct{}{} }()

			if snap, ok := s.bookCache.Get(m.Ticker); ok {
				results[i] = snap
				present[i] = true
				return
			}

			book, ok, err := s.port.GetOrderBook(ctx, m.Ticker)
			if err != nil {
				s.logger.Warn("book fetch failed, dropping ticker", "ticker", m.Ticker, "error", err)
				return
			}
			if !ok {
				return
			}

			results[i] = cache.MarketSnapshot{Market: m, Book: book}
			present[i] = true
			fetched[i] = true
		}(i, m)
	}

	for i := 0; i < started; i++ {
		<-done
	}

	// Workers only fill their result slots; freshly fetched books are put
	// into bookCache here, on the calling goroutine, after all have finished.
	out := make([]cache.MarketSnapshot, 0, len(markets))
	for i, ok := range present {
		if ok {
			if fetched[i] {
				s.bookCache.Put(markets[i].Ticker, results[i])
			}
			out = append(out, results[i])
		}
	}
	return out
}
