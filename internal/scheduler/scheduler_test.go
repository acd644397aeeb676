package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/evaluator"
	"polymarket-mm/internal/executor"
	"polymarket-mm/internal/performance"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/scanner"
	"polymarket-mm/internal/store"
	"polymarket-mm/internal/types"
)

// fakePort is a minimal exchange.Port double. One market/book pair is
// returned every scan; GetPortfolio and SubmitOrder are configurable per
// test.
type fakePort struct {
	mu sync.Mutex

	market types.Market
	book   types.OrderBook

	portfolio    types.PortfolioSnapshot
	portfolioErr error

	submitCalls int
	submitFn    func(req types.OrderRequest) (*types.OrderResult, error)
}

func (f *fakePort) ListOpenMarkets(_ context.Context, _ int) ([]types.Market, error) {
	return []types.Market{f.market}, nil
}

func (f *fakePort) GetOrderBook(_ context.Context, ticker string) (types.OrderBook, bool, error) {
	if ticker != f.market.Ticker {
		return types.OrderBook{}, false, nil
	}
	return f.book, true, nil
}

func (f *fakePort) GetPortfolio(_ context.Context) (types.PortfolioSnapshot, error) {
	if f.portfolioErr != nil {
		return types.PortfolioSnapshot{}, f.portfolioErr
	}
	return f.portfolio, nil
}

func (f *fakePort) SubmitOrder(_ context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(req)
	}
	return &types.OrderResult{OrderID: "order-1", FillPrice: req.Price, FillQty: req.Quantity}, nil
}

func (f *fakePort) CancelOrder(_ context.Context, _ string) error { return nil }

func (f *fakePort) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

// slowReasoner blocks until ctx is done, so every call looks like a
// reasoner timeout regardless of the configured deadline.
type slowReasoner struct{}

func (slowReasoner) Decide(ctx context.Context, _ types.ReasoningContext) (types.Decision, error) {
	<-ctx.Done()
	return types.Decision{}, ctx.Err()
}

type holdReasoner struct{}

func (holdReasoner) Decide(_ context.Context, _ types.ReasoningContext) (types.Decision, error) {
	return types.Decision{Kind: types.DecisionHold}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// arbitrageBook is S1 from the spec's worked scenarios: yes_bid+no_bid=97,
// a 3.0 cent deviation that clears the default 2.0 min_edge_pct.
func arbitrageBook(ticker string) (types.Market, types.OrderBook) {
	market := types.Market{Ticker: ticker, Title: ticker, Status: types.StatusOpen, Volume: 10_000, OpenInterest: 5_000}
	book := types.OrderBook{
		Ticker: ticker,
		Yes:    types.PriceSide{Bid: 48, Ask: 49, BidSize: 200, AskSize: 200},
		No:     types.PriceSide{Bid: 49, Ask: 50, BidSize: 200, AskSize: 200},
	}
	return market, book
}

// buildScheduler wires a full pipeline around port/reasoner using real
// components, the same way cmd/bot does, so runCycle exercises the actual
// scan -> evaluate -> gate -> decide -> execute chain.
func buildScheduler(t *testing.T, port *fakePort, reasoner interface {
	Decide(context.Context, types.ReasoningContext) (types.Decision, error)
}) (*Scheduler, *store.Store) {
	t.Helper()
	logger := testLogger()

	marketCache := cache.New[[]types.Market](20*time.Second, 200)
	bookCache := cache.New[cache.MarketSnapshot](30*time.Second, 200)
	opportunityCache := cache.New[types.MarketOpportunity](30*time.Second, 200)

	scan := scanner.New(port, marketCache, bookCache, 4, 50, logger)
	eval := evaluator.New(opportunityCache, 30*time.Second)
	gate := risk.New(logger)
	exec := executor.New(port, logger)
	tracker := performance.New()

	dir := t.TempDir()
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	cfg := config.Config{}
	cfg.Cycle.IntervalSeconds = 10
	cfg.Executor.TopKAdmitted = 3
	cfg.Executor.OrderDeadlineMs = 2000
	cfg.Reasoning.DeadlineMs = 50

	sched, err := New(cfg, port, scan, eval, gate, exec, reasoner, tracker, st, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sched, st
}

func TestRunCycleFallsBackAndExecutesOnReasonerTimeout(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market:    market,
		book:      book,
		portfolio: types.PortfolioSnapshot{Cash: 10_000, Equity: 10_000, Positions: map[string]types.Position{}},
	}
	sched, _ := buildScheduler(t, port, slowReasoner{})

	done := make(chan struct{})
	go func() {
		sched.runCycle()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runCycle did not return in time")
	}

	if port.submits() != 1 {
		t.Fatalf("expected exactly one SubmitOrder call via fallback, got %d", port.submits())
	}
}

func TestRunCycleHoldDecisionDoesNotExecute(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("ETH-5K")
	port := &fakePort{
		market:    market,
		book:      book,
		portfolio: types.PortfolioSnapshot{Cash: 10_000, Equity: 10_000, Positions: map[string]types.Position{}},
	}
	sched, _ := buildScheduler(t, port, holdReasoner{})

	sched.runCycle()

	if port.submits() != 0 {
		t.Fatalf("expected no SubmitOrder call on a Hold decision, got %d", port.submits())
	}
}

func TestCircuitBreakerHaltsTradingForTheDay(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market: market,
		book:   book,
		// equity=900, daily_pnl=-100 => start_of_day_equity=1000, daily_pnl_pct=-10%,
		// matching the default max_daily_loss_pct of 10.
		portfolio: types.PortfolioSnapshot{Cash: 900, Equity: 900, DailyPnL: -100, Positions: map[string]types.Position{}},
	}
	sched, _ := buildScheduler(t, port, holdReasoner{})

	sched.runCycle()
	if port.submits() != 0 {
		t.Fatalf("expected no submit_order during the tripped cycle, got %d", port.submits())
	}
	if sched.breakerTrippedDay == "" {
		t.Fatal("expected the circuit breaker to record today as tripped")
	}

	sched.runCycle()
	if port.submits() != 0 {
		t.Fatalf("expected no submit_order on a later cycle the same day, got %d", port.submits())
	}
}

func TestRunCycleSkipsOnPortfolioError(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market:       market,
		book:         book,
		portfolioErr: fmt.Errorf("get_portfolio: %w", errs.ErrTransport),
	}
	sched, _ := buildScheduler(t, port, holdReasoner{})

	sched.runCycle()

	if port.submits() != 0 {
		t.Fatalf("expected no submit_order when the portfolio fetch failed, got %d", port.submits())
	}
}

func TestRunCyclePersistsOutcomeOnExecution(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market:    market,
		book:      book,
		portfolio: types.PortfolioSnapshot{Cash: 10_000, Equity: 10_000, Positions: map[string]types.Position{}},
	}
	sched, st := buildScheduler(t, port, slowReasoner{})

	sched.runCycle()

	if sched.tracker.State().Wins+sched.tracker.State().Losses == 0 {
		t.Fatal("expected the executed trade to be recorded by the performance tracker")
	}

	sched.Stop()
	if _, ok, err := st.LoadPerformanceState(); err != nil {
		t.Fatalf("LoadPerformanceState: %v", err)
	} else if !ok {
		t.Fatal("expected Stop to persist the performance state")
	}
}

func TestRunCycleRestingOrderRecordsNoOutcome(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market:    market,
		book:      book,
		portfolio: types.PortfolioSnapshot{Cash: 10_000, Equity: 10_000, Positions: map[string]types.Position{}},
		submitFn: func(req types.OrderRequest) (*types.OrderResult, error) {
			return &types.OrderResult{OrderID: "resting-1", FillPrice: 0, FillQty: 0}, nil
		},
	}
	sched, _ := buildScheduler(t, port, slowReasoner{})

	sched.runCycle()

	if port.submits() != 1 {
		t.Fatalf("expected exactly one SubmitOrder call, got %d", port.submits())
	}
	if wins, losses := sched.tracker.State().Wins, sched.tracker.State().Losses; wins+losses != 0 {
		t.Fatalf("expected a resting order to record no outcome, got wins=%d losses=%d", wins, losses)
	}
}

func TestRankByScoreDescendingSortsInPlace(t *testing.T) {
	t.Parallel()
	opps := []types.MarketOpportunity{
		{Ticker: "A", Edge: 1, Confidence: 1, LiquidityScore: 1},
		{Ticker: "B", Edge: 3, Confidence: 1, LiquidityScore: 1},
		{Ticker: "C", Edge: 2, Confidence: 1, LiquidityScore: 1},
	}
	rankByScoreDescending(opps)

	want := []string{"B", "C", "A"}
	for i, w := range want {
		if opps[i].Ticker != w {
			t.Fatalf("position %d: got %s, want %s", i, opps[i].Ticker, w)
		}
	}
}

func TestMatchOpportunityAppliesDecisionSize(t *testing.T) {
	t.Parallel()
	admitted := []types.MarketOpportunity{{Ticker: "BTC-100K", Side: types.YES, SuggestedSize: 5}}
	decision := types.Decision{Kind: types.DecisionTrade, Ticker: "BTC-100K", Side: types.YES, Size: 9}

	opp, ok := matchOpportunity(admitted, decision)
	if !ok {
		t.Fatal("expected a match")
	}
	if opp.SuggestedSize != 9 {
		t.Fatalf("expected the decision's size to override suggested_size, got %d", opp.SuggestedSize)
	}
}

func TestMatchOpportunityMissesUnknownTicker(t *testing.T) {
	t.Parallel()
	admitted := []types.MarketOpportunity{{Ticker: "BTC-100K", Side: types.YES}}
	decision := types.Decision{Kind: types.DecisionTrade, Ticker: "NBA-FINALS", Side: types.YES}

	if _, ok := matchOpportunity(admitted, decision); ok {
		t.Fatal("expected no match for a ticker outside the admitted set")
	}
}

func TestBlockedReturnsOnlyDroppedOpportunities(t *testing.T) {
	t.Parallel()
	opps := []types.MarketOpportunity{
		{Ticker: "A", Side: types.YES},
		{Ticker: "B", Side: types.YES},
	}
	admitted := []types.MarketOpportunity{{Ticker: "A", Side: types.YES}}

	got := blocked(opps, admitted)
	if len(got) != 1 || got[0].Ticker != "B" {
		t.Fatalf("expected only B to be reported blocked, got %+v", got)
	}
}

func TestEmitNeverBlocksOnRoutineEventsWhenBufferIsFull(t *testing.T) {
	t.Parallel()
	market, book := arbitrageBook("BTC-100K")
	port := &fakePort{
		market:    market,
		book:      book,
		portfolio: types.PortfolioSnapshot{Cash: 10_000, Equity: 10_000, Positions: map[string]types.Position{}},
	}
	sched, _ := buildScheduler(t, port, holdReasoner{})

	// Fill the buffer, then send eventBufferSize more: emit() for a
	// routine type must drop rather than block, per §5's backpressure rule.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBufferSize*2; i++ {
			sched.emit(types.EventCycleBegin, types.CycleBoundaryData{CycleIndex: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit() blocked on a routine event type with a full buffer")
	}
}
