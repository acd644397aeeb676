package exchange

import (
	"context"
	"fmt"
	"sync"

	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/types"
)

// slippageBps is the fixed slippage the Simulator adds to every fill, on
// top of the crossing ask, in basis points of that ask. Prices are whole
// cents, so the integer term (ask*5)/10000 is zero for every ask in 1..99
// and fills land exactly at the ask.
const slippageBps = 5

// Simulator is the paper-mode Exchange Port adapter. It fills orders
// deterministically against a seeded book rather than sampling a random
// outcome: a limit BUY fills instantly when its price reaches its side's
// ask, at that ask (see slippageBps), or rests unfilled otherwise.
// There is no stochastic fill-probability model — every outcome is a pure
// function of the order and the book it was priced against.
type Simulator struct {
	mu        sync.Mutex
	markets   map[string]types.Market
	books     map[string]types.OrderBook
	portfolio types.PortfolioSnapshot
	nextOrder int64
}

// NewSimulator seeds a Simulator with a starting cash balance. Markets and
// books are registered via Seed before the first cycle runs.
func NewSimulator(startingCash int) *Simulator {
	return &Simulator{
		markets: make(map[string]types.Market),
		books:   make(map[string]types.OrderBook),
		portfolio: types.PortfolioSnapshot{
			Cash:       startingCash,
			Equity:     startingCash,
			PeakEquity: startingCash,
			Positions:  make(map[string]types.Position),
		},
	}
}

// Seed installs or replaces a market and its current book, as a stand-in
// for what a live feed would otherwise deliver.
func (s *Simulator) Seed(market types.Market, book types.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[market.Ticker] = market
	s.books[book.Ticker] = book
}

func (s *Simulator) ListOpenMarkets(_ context.Context, limit int) ([]types.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if m.Status != types.StatusOpen {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Simulator) GetOrderBook(_ context.Context, ticker string) (types.OrderBook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[ticker]
	return book, ok, nil
}

func (s *Simulator) GetPortfolio(_ context.Context) (types.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Simulator) snapshotLocked() types.PortfolioSnapshot {
	positions := make(map[string]types.Position, len(s.portfolio.Positions))
	for k, v := range s.portfolio.Positions {
		positions[k] = v
	}
	snap := s.portfolio
	snap.Positions = positions
	return snap
}

// SubmitOrder fills a limit BUY on either side (YES or NO) at price >= that
// side's ask immediately, at the ask (see slippageBps). A price that doesn't
// cross rests: it comes back as a successful OrderResult with a zero fill
// quantity rather than an error, since the book may still move to cross
// it on a later cycle. Only a genuinely unactionable request (unknown
// ticker, missing quote, insufficient cash) is a PermanentError.
func (s *Simulator) SubmitOrder(_ context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[req.Ticker]
	if !ok {
		return nil, fmt.Errorf("submit_order: %w: unknown ticker %s", errs.ErrPermanent, req.Ticker)
	}

	var side types.PriceSide
	if req.Side == types.YES {
		side = book.Yes
	} else {
		side = book.No
	}
	if !side.Present() {
		return nil, fmt.Errorf("submit_order: %w: %s side has no quote", errs.ErrPermanent, req.Side)
	}
	if req.Price < side.Ask {
		s.nextOrder++
		return &types.OrderResult{
			OrderID:   fmt.Sprintf("paper-%d", s.nextOrder),
			FillPrice: 0,
			FillQty:   0,
		}, nil
	}

	fillPrice := side.Ask + (side.Ask*slippageBps)/10000
	if fillPrice < 1 {
		fillPrice = 1
	}
	if fillPrice > 99 {
		fillPrice = 99
	}

	cost := fillPrice * req.Quantity
	if cost > s.portfolio.Cash {
		return nil, fmt.Errorf("submit_order: %w: insufficient cash", errs.ErrPermanent)
	}

	s.portfolio.Cash -= cost
	pos := s.portfolio.Positions[req.Ticker]
	pos.Ticker = req.Ticker
	signedQty := req.Quantity
	if req.Side == types.NO {
		signedQty = -req.Quantity
	}
	if pos.Quantity == 0 {
		pos.EntryPrice = fillPrice
	} else {
		totalQty := pos.Quantity + signedQty
		if totalQty != 0 {
			pos.EntryPrice = (pos.EntryPrice*abs(pos.Quantity) + fillPrice*abs(signedQty)) / abs(totalQty)
		}
	}
	pos.Quantity += signedQty
	pos.CurrentPrice = fillPrice
	s.portfolio.Positions[req.Ticker] = pos

	s.recomputeEquityLocked()

	s.nextOrder++
	return &types.OrderResult{
		OrderID:   fmt.Sprintf("paper-%d", s.nextOrder),
		FillPrice: fillPrice,
		FillQty:   req.Quantity,
	}, nil
}

// CancelOrder is a no-op: the simulator doesn't persist resting orders as
// standing state, it just re-evaluates crossing against the current book
// on every submit_order call, so there is nothing here to cancel.
func (s *Simulator) CancelOrder(_ context.Context, _ string) error { return nil }

func (s *Simulator) recomputeEquityLocked() {
	equity := s.portfolio.Cash
	for _, pos := range s.portfolio.Positions {
		equity += pos.Quantity * pos.CurrentPrice
	}
	s.portfolio.Equity = equity
	if equity > s.portfolio.PeakEquity {
		s.portfolio.PeakEquity = equity
	}
	if s.portfolio.PeakEquity > 0 {
		s.portfolio.DrawdownPct = float64(s.portfolio.PeakEquity-equity) / float64(s.portfolio.PeakEquity) * 100
		if s.portfolio.DrawdownPct < 0 {
			s.portfolio.DrawdownPct = 0
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
