// Package executor implements the Executor (C7): price-impact adjustment,
// order submission through the Exchange Port, and latency/slippage
// accounting for the single opportunity a cycle admits.
package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/types"
)

// Result is everything the Scheduler needs after one execution attempt:
// the resulting attempt state and, on a fill, the outcome to feed the
// Performance Tracker and audit log.
type Result struct {
	State   types.OrderAttemptState
	Outcome types.TradeOutcome
	Fill    *types.OrderResult
}

// Executor submits the cycle's single admitted opportunity and tracks
// historical slippage per ticker-side to adjust future quote prices.
type Executor struct {
	port   exchange.Port
	impact *impactTracker
	logger *slog.Logger
}

// New builds an Executor bound to port.
func New(port exchange.Port, logger *slog.Logger) *Executor {
	return &Executor{
		port:   port,
		impact: newImpactTracker(),
		logger: logger.With("component", "executor"),
	}
}

// Execute runs the §4.7 algorithm for one opportunity: compute the
// impact-adjusted price, submit within orderDeadline, and on success
// record latency/slippage and return a TradeOutcome. Callers classify the
// returned error with errs.ClassifyOf to decide whether to continue the
// cycle, skip its remaining executions (RateLimited), or just surface it
// (PermanentError) per §4.7 steps 4-6 — Execute itself never retries.
func (e *Executor) Execute(ctx context.Context, opp types.MarketOpportunity) (Result, error) {
	offset := e.impact.offset(opp.Ticker, string(opp.Side))
	adjustedPrice := int(math.Round(float64(opp.EntryPrice) + offset))

	req := types.OrderRequest{
		Ticker:   opp.Ticker,
		Side:     opp.Side,
		Price:    adjustedPrice,
		Quantity: opp.SuggestedSize,
		Kind:     types.OrderLimit,
	}

	start := time.Now()
	fill, err := e.port.SubmitOrder(ctx, req)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		state := orderAttemptStateFor(ctx, err)
		e.logger.Warn("order submission failed",
			"ticker", opp.Ticker, "side", opp.Side, "state", state, "error", err)
		return Result{State: state}, err
	}

	if fill.FillQty == 0 {
		e.logger.Info("order resting, no fill this tick",
			"ticker", opp.Ticker, "side", opp.Side, "order_id", fill.OrderID)
		return Result{State: types.OrderSubmitted, Fill: fill}, nil
	}

	slippagePct := 0.0
	if opp.EntryPrice != 0 {
		slippagePct = float64(fill.FillPrice-opp.EntryPrice) / float64(opp.EntryPrice) * 100
	}
	e.impact.record(opp.Ticker, string(opp.Side), float64(fill.FillPrice-opp.EntryPrice))

	state := types.OrderFilled
	if fill.FillQty < opp.SuggestedSize {
		state = types.OrderPartial
	}

	outcome := types.TradeOutcome{
		Ticker:      opp.Ticker,
		Strategy:    opp.Strategy,
		Side:        opp.Side,
		Edge:        opp.Edge,
		RealizedPnL: (fill.FillPrice - opp.EntryPrice) * fill.FillQty,
		LatencyMs:   latencyMs,
		SlippagePct: slippagePct,
		Timestamp:   time.Now(),
	}

	e.logger.Info("order executed",
		"ticker", opp.Ticker, "side", opp.Side, "state", state,
		"fill_price", fill.FillPrice, "fill_qty", fill.FillQty,
		"latency_ms", latencyMs, "slippage_pct", slippagePct)

	return Result{State: state, Outcome: outcome, Fill: fill}, nil
}

// orderAttemptStateFor maps a submission error to the §4.7 state machine:
// the order_deadline expiring (whether surfaced via ctx or already
// classified by the port) is a timeout; every other error rejects the
// attempt outright — there is no resting order to track once
// submit_order itself has failed.
func orderAttemptStateFor(ctx context.Context, err error) types.OrderAttemptState {
	if ctx.Err() == context.DeadlineExceeded || errs.ClassifyOf(err) == errs.KindDeadlineExceeded {
		return types.OrderTimeout
	}
	return types.OrderRejected
}
