// Package risk implements the Risk Gate (C6): correlation-aware filtering
// of candidate opportunities, Kelly-criterion position sizing, and the
// adaptive loop that tunes RiskParams from recent performance.
package risk

import (
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/types"
)

// clamp bounds.
const (
	kellyFractionMin = 0.05
	kellyFractionMax = 0.50
	modelProbMin     = 0.01
	modelProbMax     = 0.99
)

// Gate runs correlation filtering and Kelly sizing over a cycle's ranked
// opportunities, and adapts RiskParams between cycles based on recent
// performance. It holds no state of its own between calls — the Scheduler
// owns RiskParams and PerformanceState and passes them in each cycle.
type Gate struct {
	logger *slog.Logger
}

// New builds a Gate.
func New(logger *slog.Logger) *Gate {
	return &Gate{logger: logger.With("component", "risk_gate")}
}

// Adapt tunes params from perf per §4.6's adaptive rules and returns the
// updated copy; the input params is never mutated in place.
func (g *Gate) Adapt(perf types.PerformanceState, params types.RiskParams) types.RiskParams {
	next := params

	if perf.ConsecutiveWins >= 5 {
		next.KellyFraction = next.KellyFraction.Mul(decimal.NewFromFloat(1.2))
		next.MinEdgePct = next.MinEdgePct.Mul(decimal.NewFromFloat(0.9))
	}
	if perf.ConsecutiveLosses >= 3 {
		next.KellyFraction = next.KellyFraction.Mul(decimal.NewFromFloat(0.7))
		next.MinEdgePct = next.MinEdgePct.Mul(decimal.NewFromFloat(1.3))
	}
	if perf.MaxDrawdownPct > 5 {
		next.KellyFraction = next.KellyFraction.Mul(decimal.NewFromFloat(0.8))
	}

	next.KellyFraction = clampDecimal(next.KellyFraction, kellyFractionMin, kellyFractionMax)

	if !next.KellyFraction.Equal(params.KellyFraction) || !next.MinEdgePct.Equal(params.MinEdgePct) {
		g.logger.Info("risk params adapted",
			"consecutive_wins", perf.ConsecutiveWins,
			"consecutive_losses", perf.ConsecutiveLosses,
			"drawdown_pct", perf.MaxDrawdownPct,
			"kelly_fraction_before", params.KellyFraction,
			"kelly_fraction_after", next.KellyFraction,
			"min_edge_pct_before", params.MinEdgePct,
			"min_edge_pct_after", next.MinEdgePct,
		)
	}

	return next
}

func clampDecimal(d decimal.Decimal, min, max float64) decimal.Decimal {
	lo := decimal.NewFromFloat(min)
	hi := decimal.NewFromFloat(max)
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// FilterAndSize runs the two-phase Risk Gate over opps (already ranked by
// the caller): correlation-group filtering against existing positions and
// this cycle's prior admissions, then Kelly sizing. Opportunities are
// processed in their given order, and admitted ones' group counts feed the
// filter for subsequent opportunities in the same call — matching §4.6's
// "positions + selected this cycle" exposure count.
func (g *Gate) FilterAndSize(opps []types.MarketOpportunity, portfolio types.PortfolioSnapshot, params types.RiskParams) []types.MarketOpportunity {
	groupCounts := make(map[string]int)
	for _, pos := range portfolio.Positions {
		groupCounts[positionGroup(pos)]++
	}

	minEdge, _ := params.MinEdgePct.Float64()
	multiplier, _ := params.CorrelationEdgeMultiplier.Float64()
	maxGroupCount := params.MaxCorrelationGroupCount
	maxPositionFraction, _ := params.MaxPositionPct.Float64()
	maxPositionFraction /= 100
	kellyFractionScale, _ := params.KellyFraction.Float64()
	maxConcentrationFraction, _ := params.MaxConcentrationPct.Float64()
	maxConcentrationFraction /= 100

	admitted := make([]types.MarketOpportunity, 0, len(opps))
	for _, opp := range opps {
		if groupCounts[opp.CorrelationGroup] >= maxGroupCount && opp.Edge < minEdge*multiplier {
			g.logger.Debug("opportunity rejected by correlation cap",
				"ticker", opp.Ticker, "group", opp.CorrelationGroup, "edge", opp.Edge)
			continue
		}

		sized := opp
		sized.SuggestedSize = kellySize(opp, portfolio.Equity, maxPositionFraction, kellyFractionScale)
		if sized.SuggestedSize <= 0 {
			continue
		}

		if exceedsConcentrationCap(sized, portfolio, maxConcentrationFraction) {
			g.logger.Debug("opportunity rejected by concentration cap",
				"ticker", opp.Ticker, "suggested_size", sized.SuggestedSize)
			continue
		}

		admitted = append(admitted, sized)
		groupCounts[opp.CorrelationGroup]++
	}

	return admitted
}

// exceedsConcentrationCap reports whether filling opp's suggested size on
// top of the ticker's existing position would push that ticker's net
// notional past maxConcentrationFraction of equity.
func exceedsConcentrationCap(opp types.MarketOpportunity, portfolio types.PortfolioSnapshot, maxConcentrationFraction float64) bool {
	if portfolio.Equity <= 0 {
		return false
	}

	signedQty := opp.SuggestedSize
	if opp.Side == types.NO {
		signedQty = -signedQty
	}
	postQty := portfolio.Positions[opp.Ticker].Quantity + signedQty

	postNotional := absInt(postQty) * opp.EntryPrice
	cap := maxConcentrationFraction * float64(portfolio.Equity)
	return float64(postNotional) > cap
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// kellySize applies the §4.6 Kelly formula and converts the resulting
// bankroll fraction into a whole-contract size at the opportunity's entry
// price.
func kellySize(opp types.MarketOpportunity, equity int, maxPositionFraction, kellyFractionScale float64) int {
	p := float64(opp.EntryPrice) / 100
	if p <= 0 || p >= 1 {
		return 0
	}

	q := p + opp.Edge/100
	q = math.Max(modelProbMin, math.Min(modelProbMax, q))

	b := (1 - p) / p
	if b <= 0 {
		return 0
	}

	kelly := (b*q - (1 - q)) / b
	if kelly < 0 {
		kelly = 0
	}

	fraction := kelly * kellyFractionScale * opp.Confidence
	fraction = math.Max(0, math.Min(maxPositionFraction, fraction))
	if fraction <= 0 || equity <= 0 {
		return 0
	}

	dollars := fraction * float64(equity)
	contracts := dollars / float64(opp.EntryPrice)
	return int(contracts)
}

func positionGroup(pos types.Position) string {
	return GroupOf(pos.Ticker)
}
