package risk

import (
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAdaptWinStreakRelaxesParams(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams() // kelly_fraction=0.25, min_edge_pct=2.0
	perf := types.PerformanceState{ConsecutiveWins: 5}

	got := g.Adapt(perf, params)

	wantKelly := decimal.NewFromFloat(0.30)
	if !got.KellyFraction.Equal(wantKelly) {
		t.Errorf("KellyFraction = %v, want %v", got.KellyFraction, wantKelly)
	}
	wantEdge := decimal.NewFromFloat(1.8)
	if !got.MinEdgePct.Equal(wantEdge) {
		t.Errorf("MinEdgePct = %v, want %v", got.MinEdgePct, wantEdge)
	}
}

func TestAdaptLossStreakTightensParams(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	perf := types.PerformanceState{ConsecutiveLosses: 3}

	got := g.Adapt(perf, params)

	if !got.KellyFraction.LessThan(params.KellyFraction) {
		t.Errorf("KellyFraction should shrink after a loss streak: got %v, had %v", got.KellyFraction, params.KellyFraction)
	}
	if !got.MinEdgePct.GreaterThan(params.MinEdgePct) {
		t.Errorf("MinEdgePct should rise after a loss streak: got %v, had %v", got.MinEdgePct, params.MinEdgePct)
	}
}

func TestAdaptClampsKellyFraction(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	params.KellyFraction = decimal.NewFromFloat(0.45)
	perf := types.PerformanceState{ConsecutiveWins: 5}

	got := g.Adapt(perf, params)

	if !got.KellyFraction.Equal(decimal.NewFromFloat(kellyFractionMax)) {
		t.Errorf("KellyFraction = %v, want clamped to %v", got.KellyFraction, kellyFractionMax)
	}
}

func TestAdaptDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	before := params.KellyFraction

	g.Adapt(types.PerformanceState{ConsecutiveWins: 5}, params)

	if !params.KellyFraction.Equal(before) {
		t.Errorf("Adapt mutated the input params: KellyFraction = %v, want unchanged %v", params.KellyFraction, before)
	}
}

func TestFilterAndSizeCorrelationCap(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	params.MinEdgePct = decimal.NewFromFloat(2.0)
	params.MaxCorrelationGroupCount = 2
	params.CorrelationEdgeMultiplier = decimal.NewFromFloat(1.5)

	portfolio := types.PortfolioSnapshot{
		Equity: 100000,
		Positions: map[string]types.Position{
			"BTC-100K": {Ticker: "BTC-100K"},
			"ETH-5K":   {Ticker: "ETH-5K"},
		},
	}

	opps := []types.MarketOpportunity{
		{Ticker: "BTC-120K", Side: types.YES, EntryPrice: 50, Edge: 2.5, Confidence: 0.9, LiquidityScore: 1, CorrelationGroup: "crypto"},
		{Ticker: "NBA-FINALS", Side: types.YES, EntryPrice: 50, Edge: 2.5, Confidence: 0.9, LiquidityScore: 1, CorrelationGroup: "sports"},
	}

	admitted := g.FilterAndSize(opps, portfolio, params)

	for _, a := range admitted {
		if a.Ticker == "BTC-120K" {
			t.Errorf("BTC-120K should be rejected: edge 2.5 < required 3.0 with two existing crypto positions")
		}
	}
	found := false
	for _, a := range admitted {
		if a.Ticker == "NBA-FINALS" {
			found = true
		}
	}
	if !found {
		t.Errorf("NBA-FINALS should be admitted, got %+v", admitted)
	}
}

func TestFilterAndSizeAdmitsAboveMultiplierDespiteCap(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	params.MinEdgePct = decimal.NewFromFloat(2.0)
	params.MaxCorrelationGroupCount = 2
	params.CorrelationEdgeMultiplier = decimal.NewFromFloat(1.5)

	portfolio := types.PortfolioSnapshot{
		Equity: 100000,
		Positions: map[string]types.Position{
			"BTC-100K": {Ticker: "BTC-100K"},
			"ETH-5K":   {Ticker: "ETH-5K"},
		},
	}

	opps := []types.MarketOpportunity{
		{Ticker: "BTC-150K", Side: types.YES, EntryPrice: 50, Edge: 3.5, Confidence: 0.9, LiquidityScore: 1, CorrelationGroup: "crypto"},
	}

	admitted := g.FilterAndSize(opps, portfolio, params)
	if len(admitted) != 1 {
		t.Fatalf("expected BTC-150K admitted (edge 3.5 >= 2.0*1.5), got %+v", admitted)
	}
}

func TestKellySizeMonotonicInEdgeAndConfidence(t *testing.T) {
	t.Parallel()
	base := types.MarketOpportunity{EntryPrice: 50, LiquidityScore: 1}

	lowEdge := base
	lowEdge.Edge = 2
	lowEdge.Confidence = 0.6
	highEdge := base
	highEdge.Edge = 5
	highEdge.Confidence = 0.6

	sizeLow := kellySize(lowEdge, 1000000, 1.0, 0.25)
	sizeHigh := kellySize(highEdge, 1000000, 1.0, 0.25)
	if sizeHigh < sizeLow {
		t.Errorf("suggested_size should be nondecreasing in edge: low=%d high=%d", sizeLow, sizeHigh)
	}

	lowConf := base
	lowConf.Edge = 3
	lowConf.Confidence = 0.5
	highConf := base
	highConf.Edge = 3
	highConf.Confidence = 0.9

	sizeLowConf := kellySize(lowConf, 1000000, 1.0, 0.25)
	sizeHighConf := kellySize(highConf, 1000000, 1.0, 0.25)
	if sizeHighConf < sizeLowConf {
		t.Errorf("suggested_size should be nondecreasing in confidence: low=%d high=%d", sizeLowConf, sizeHighConf)
	}
}

func TestFilterAndSizeRejectsOverConcentratedTicker(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	params.MaxConcentrationPct = decimal.NewFromFloat(20)
	params.MaxPositionPct = decimal.NewFromFloat(100)
	params.KellyFraction = decimal.NewFromFloat(0.50)

	// Equity 100000 cents; a 19000-cent existing YES position is already
	// just under the 20% (20000-cent) concentration cap, so any further
	// same-side size pushes it over.
	portfolio := types.PortfolioSnapshot{
		Equity: 100000,
		Positions: map[string]types.Position{
			"BTC-100K": {Ticker: "BTC-100K", Quantity: 380, EntryPrice: 50, CurrentPrice: 50},
		},
	}

	opps := []types.MarketOpportunity{
		{Ticker: "BTC-100K", Side: types.YES, EntryPrice: 50, Edge: 10, Confidence: 0.95, LiquidityScore: 1, CorrelationGroup: "crypto"},
	}

	admitted := g.FilterAndSize(opps, portfolio, params)
	if len(admitted) != 0 {
		t.Errorf("expected BTC-100K rejected for exceeding the concentration cap, got %+v", admitted)
	}
}

func TestFilterAndSizeAdmitsWithinConcentrationCap(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()
	params.MaxConcentrationPct = decimal.NewFromFloat(20)
	params.MaxPositionPct = decimal.NewFromFloat(100)

	portfolio := types.PortfolioSnapshot{Equity: 100000, Positions: map[string]types.Position{}}

	opps := []types.MarketOpportunity{
		{Ticker: "BTC-100K", Side: types.YES, EntryPrice: 50, Edge: 3, Confidence: 0.9, LiquidityScore: 1, CorrelationGroup: "crypto"},
	}

	admitted := g.FilterAndSize(opps, portfolio, params)
	if len(admitted) != 1 {
		t.Errorf("expected BTC-100K admitted with no existing position, got %+v", admitted)
	}
}

func TestFilterAndSizeRejectsZeroSize(t *testing.T) {
	t.Parallel()
	g := New(testLogger())
	params := types.DefaultRiskParams()

	opps := []types.MarketOpportunity{
		{Ticker: "TINY", Side: types.YES, EntryPrice: 50, Edge: 2.1, Confidence: 0.6, LiquidityScore: 1, CorrelationGroup: "other"},
	}
	portfolio := types.PortfolioSnapshot{Equity: 0}

	admitted := g.FilterAndSize(opps, portfolio, params)
	if len(admitted) != 0 {
		t.Errorf("expected no admissions with zero equity, got %+v", admitted)
	}
}
