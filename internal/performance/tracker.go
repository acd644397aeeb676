// Package performance implements the Performance Tracker (C8): running
// win/loss streaks, drawdown, and per-strategy statistics updated from
// every TradeOutcome and portfolio refresh, plus on-demand feedback
// metrics with threshold-derived recommendations.
package performance

import (
	"sync"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/types"
)

const (
	winRateLowThreshold  = 0.45
	winRateHighThreshold = 0.65
	drawdownThresholdPct = 5.0
	bestStrategyMargin   = 0.20 // best total_pnl must exceed the runner-up by >=20%
)

// Tracker holds the running PerformanceState and updates it from trade
// outcomes and portfolio snapshots. Thread-safe via a single mutex, the
// same discipline the teacher's per-market Inventory uses for its own
// running PnL state.
type Tracker struct {
	mu    sync.Mutex
	state types.PerformanceState
}

// New returns a Tracker with a zeroed PerformanceState.
func New() *Tracker {
	return &Tracker{state: types.NewPerformanceState()}
}

// State returns a copy of the current PerformanceState.
func (t *Tracker) State() types.PerformanceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Restore replaces the running state with one loaded from the store,
// letting streaks, drawdown, and per-strategy stats survive a restart.
func (t *Tracker) Restore(state types.PerformanceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.PerStrategy == nil {
		state.PerStrategy = make(map[types.StrategyName]types.StrategyStats)
	}
	t.state = state
}

// ObservePortfolio updates peak equity and drawdown from the latest
// portfolio snapshot, per §4.8's "on each portfolio refresh" trigger.
func (t *Tracker) ObservePortfolio(portfolio types.PortfolioSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if portfolio.Equity > t.state.PeakEquity {
		t.state.PeakEquity = portfolio.Equity
	}

	drawdownPct := 0.0
	if t.state.PeakEquity > 0 {
		drawdownPct = float64(t.state.PeakEquity-portfolio.Equity) / float64(t.state.PeakEquity) * 100
		if drawdownPct < 0 {
			drawdownPct = 0
		}
	}
	if drawdownPct > t.state.MaxDrawdownPct {
		t.state.MaxDrawdownPct = drawdownPct
	}
}

// RecordOutcome folds a settled TradeOutcome into the running state: win
// or loss streak (by sign of realized_pnl), total P&L, and per-strategy
// stats.
func (t *Tracker) RecordOutcome(outcome types.TradeOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if outcome.RealizedPnL >= 0 {
		t.state.Wins++
		t.state.ConsecutiveWins++
		t.state.ConsecutiveLosses = 0
	} else {
		t.state.Losses++
		t.state.ConsecutiveLosses++
		t.state.ConsecutiveWins = 0
	}

	t.state.TotalPnL = t.state.TotalPnL.Add(decimal.NewFromInt(int64(outcome.RealizedPnL)))

	stats := t.state.PerStrategy[outcome.Strategy]
	n := float64(stats.Count)
	stats.AvgEdge = (stats.AvgEdge*n + outcome.Edge) / (n + 1)
	stats.AvgLatencyMs = (stats.AvgLatencyMs*n + float64(outcome.LatencyMs)) / (n + 1)
	stats.Count++
	stats.TotalPnL = stats.TotalPnL.Add(decimal.NewFromInt(int64(outcome.RealizedPnL)))
	t.state.PerStrategy[outcome.Strategy] = stats
}

// Feedback produces a FeedbackMetrics snapshot from the current state,
// with recommendations derived from the §4.8 threshold rules.
func (t *Tracker) Feedback() types.FeedbackMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	winRate := t.state.WinRate()
	fb := types.FeedbackMetrics{
		WinRate:           winRate,
		Trades:            t.state.Wins + t.state.Losses,
		TotalPnL:          t.state.TotalPnL,
		ConsecutiveWins:   t.state.ConsecutiveWins,
		ConsecutiveLosses: t.state.ConsecutiveLosses,
		DrawdownPct:       t.state.MaxDrawdownPct,
	}

	if fb.Trades > 0 && winRate < winRateLowThreshold {
		fb.Recommendations = append(fb.Recommendations, "tighten min_edge")
	}
	if fb.Trades > 0 && winRate > winRateHighThreshold {
		fb.Recommendations = append(fb.Recommendations, "size up cautiously")
	}
	if fb.DrawdownPct > drawdownThresholdPct {
		fb.Recommendations = append(fb.Recommendations, "risk reduction active")
	}

	if best, ok := bestStrategy(t.state.PerStrategy); ok {
		fb.BestStrategy = best
	}

	return fb
}

// bestStrategy names the strategy whose total_pnl strictly exceeds the
// runner-up's by at least bestStrategyMargin (20%), or reports false when
// fewer than two strategies have traded or no strategy clears the margin.
func bestStrategy(stats map[types.StrategyName]types.StrategyStats) (string, bool) {
	type ranked struct {
		name    types.StrategyName
		totalPnL decimal.Decimal
	}
	var all []ranked
	for name, s := range stats {
		if s.Count == 0 {
			continue
		}
		all = append(all, ranked{name, s.TotalPnL})
	}
	if len(all) < 2 {
		return "", false
	}

	best, second := all[0], all[1]
	if second.totalPnL.GreaterThan(best.totalPnL) {
		best, second = second, best
	}
	for _, r := range all[2:] {
		if r.totalPnL.GreaterThan(best.totalPnL) {
			second = best
			best = r
		} else if r.totalPnL.GreaterThan(second.totalPnL) {
			second = r
		}
	}

	if second.totalPnL.IsZero() {
		if best.totalPnL.IsPositive() {
			return string(best.name), true
		}
		return "", false
	}

	margin := best.totalPnL.Sub(second.totalPnL).Div(second.totalPnL.Abs())
	if margin.GreaterThanOrEqual(decimal.NewFromFloat(bestStrategyMargin)) {
		return string(best.name), true
	}
	return "", false
}
