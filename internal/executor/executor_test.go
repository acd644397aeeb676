package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakePort struct {
	result  *types.OrderResult
	err     error
	lastReq types.OrderRequest
}

func (f *fakePort) ListOpenMarkets(context.Context, int) ([]types.Market, error) { return nil, nil }
func (f *fakePort) GetOrderBook(context.Context, string) (types.OrderBook, bool, error) {
	return types.OrderBook{}, false, nil
}
func (f *fakePort) GetPortfolio(context.Context) (types.PortfolioSnapshot, error) {
	return types.PortfolioSnapshot{}, nil
}
func (f *fakePort) SubmitOrder(_ context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	f.lastReq = req
	return f.result, f.err
}
func (f *fakePort) CancelOrder(context.Context, string) error { return nil }

func baseOpportunity() types.MarketOpportunity {
	return types.MarketOpportunity{
		Ticker:        "ABC",
		Side:          types.YES,
		EntryPrice:    50,
		Edge:          3.0,
		Confidence:    0.9,
		SuggestedSize: 100,
		Strategy:      types.StrategyArbitrage,
	}
}

func TestExecuteAppliesDefaultImpactOffsetWithNoHistory(t *testing.T) {
	t.Parallel()
	port := &fakePort{result: &types.OrderResult{OrderID: "o1", FillPrice: 50, FillQty: 100}}
	e := New(port, testLogger())

	_, err := e.Execute(context.Background(), baseOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if port.lastReq.Price != 51 {
		t.Errorf("adjusted_price = %d, want 51 (entry 50 + default offset 0.5 rounded)", port.lastReq.Price)
	}
}

func TestExecuteRecordsOutcomeOnFill(t *testing.T) {
	t.Parallel()
	port := &fakePort{result: &types.OrderResult{OrderID: "o1", FillPrice: 52, FillQty: 100}}
	e := New(port, testLogger())

	res, err := e.Execute(context.Background(), baseOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.State != types.OrderFilled {
		t.Errorf("state = %s, want filled", res.State)
	}
	wantSlippage := (52.0 - 50.0) / 50.0 * 100
	if res.Outcome.SlippagePct != wantSlippage {
		t.Errorf("slippage_pct = %v, want %v", res.Outcome.SlippagePct, wantSlippage)
	}
}

func TestExecutePartialFill(t *testing.T) {
	t.Parallel()
	port := &fakePort{result: &types.OrderResult{OrderID: "o1", FillPrice: 51, FillQty: 40}}
	e := New(port, testLogger())

	res, err := e.Execute(context.Background(), baseOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.State != types.OrderPartial {
		t.Errorf("state = %s, want partial (fill_qty 40 < suggested_size 100)", res.State)
	}
}

func TestExecuteRestingOrderIsSubmittedNotAnError(t *testing.T) {
	t.Parallel()
	port := &fakePort{result: &types.OrderResult{OrderID: "o1", FillPrice: 0, FillQty: 0}}
	e := New(port, testLogger())

	res, err := e.Execute(context.Background(), baseOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.State != types.OrderSubmitted {
		t.Errorf("state = %s, want submitted for a zero-fill resting order", res.State)
	}
	if res.Fill == nil || res.Fill.OrderID != "o1" {
		t.Errorf("Fill = %+v, want the resting order's id preserved", res.Fill)
	}
	if res.Outcome != (types.TradeOutcome{}) {
		t.Errorf("Outcome = %+v, want zero value for a resting order (no trade to record)", res.Outcome)
	}
}

func TestExecuteTransportErrorSurfacesAndDoesNotPanic(t *testing.T) {
	t.Parallel()
	port := &fakePort{err: fmt.Errorf("submit_order: %w: timeout dialing exchange", errs.ErrTransport)}
	e := New(port, testLogger())

	res, err := e.Execute(context.Background(), baseOpportunity())
	if !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if res.State != types.OrderRejected {
		t.Errorf("state = %s, want rejected for a non-deadline transport error", res.State)
	}
}

func TestExecuteRateLimitedClassifiable(t *testing.T) {
	t.Parallel()
	port := &fakePort{err: fmt.Errorf("submit_order: %w", errs.ErrRateLimited)}
	e := New(port, testLogger())

	_, err := e.Execute(context.Background(), baseOpportunity())
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected caller to be able to classify ErrRateLimited, got %v", err)
	}
}

func TestExecuteDeadlineExceededIsTimeout(t *testing.T) {
	t.Parallel()
	port := &fakePort{err: errors.New("boom")}
	e := New(port, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	res, err := e.Execute(ctx, baseOpportunity())
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.State != types.OrderTimeout {
		t.Errorf("state = %s, want timeout when ctx deadline already expired", res.State)
	}
}

func TestImpactOffsetUpdatesFromHistoryAndIsClamped(t *testing.T) {
	t.Parallel()
	port := &fakePort{}
	e := New(port, testLogger())

	// Fill repeatedly at +5 cents above entry price, far past the 2-cent
	// ceiling, to verify the mean offset clamps rather than tracking raw.
	for i := 0; i < 20; i++ {
		port.result = &types.OrderResult{OrderID: "o", FillPrice: 55, FillQty: 100}
		if _, err := e.Execute(context.Background(), baseOpportunity()); err != nil {
			t.Fatalf("Execute iteration %d: %v", i, err)
		}
	}

	offset := e.impact.offset("ABC", string(types.YES))
	if offset != impactOffsetCeiling {
		t.Errorf("offset = %v, want clamped to ceiling %v", offset, impactOffsetCeiling)
	}
}
