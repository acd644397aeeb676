package api

import (
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/scheduler"
	"polymarket-mm/internal/types"
)

// SnapshotProvider supplies the current scheduler state to the dashboard.
// Satisfied by *scheduler.Scheduler.
type SnapshotProvider interface {
	Snapshot() scheduler.Snapshot
}

// BuildSnapshot converts the Scheduler's internal Snapshot into the
// dashboard-facing wire format, applying the cents-to-dollars and
// decimal-to-float64 conversions at this JSON boundary.
func BuildSnapshot(provider SnapshotProvider, cfg config.Config) DashboardSnapshot {
	snap := provider.Snapshot()

	return DashboardSnapshot{
		Timestamp:      time.Now(),
		CycleIndex:     snap.CycleIndex,
		BreakerTripped: snap.BreakerTripped,
		Portfolio:      convertPortfolio(snap.Portfolio),
		Risk:           convertRiskParams(snap.RiskParams),
		Performance:    convertPerformance(snap.Performance),
		Config:         NewConfigSummary(cfg),
	}
}

func convertPortfolio(p types.PortfolioSnapshot) PortfolioSnapshot {
	positions := make(map[string]Position, len(p.Positions))
	for ticker, pos := range p.Positions {
		positions[ticker] = convertPosition(pos)
	}
	return PortfolioSnapshot{
		Cash:      centsToDollars(p.Cash),
		Equity:    centsToDollars(p.Equity),
		DailyPnL:  centsToDollars(p.DailyPnL),
		Positions: positions,
	}
}

func convertPosition(p types.Position) Position {
	side := string(types.YES)
	qty := p.Quantity
	if qty < 0 {
		side = "NO"
		qty = -qty
	}
	return Position{
		Ticker:        p.Ticker,
		Side:          side,
		Qty:           qty,
		EntryPrice:    centsToDollars(p.EntryPrice),
		UnrealizedPnL: centsToDollars(p.UnrealizedPnL),
	}
}

func convertRiskParams(r types.RiskParams) RiskSnapshot {
	maxPositionPct, _ := r.MaxPositionPct.Float64()
	minEdgePct, _ := r.MinEdgePct.Float64()
	kellyFraction, _ := r.KellyFraction.Float64()
	maxDailyLossPct, _ := r.MaxDailyLossPct.Float64()
	maxConcentrationPct, _ := r.MaxConcentrationPct.Float64()
	correlationEdgeMultiplier, _ := r.CorrelationEdgeMultiplier.Float64()
	return RiskSnapshot{
		MaxPositionPct:            maxPositionPct,
		MinEdgePct:                minEdgePct,
		KellyFraction:             kellyFraction,
		MaxDailyLossPct:           maxDailyLossPct,
		MaxConcentrationPct:       maxConcentrationPct,
		MaxCorrelationGroupCount:  r.MaxCorrelationGroupCount,
		CorrelationEdgeMultiplier: correlationEdgeMultiplier,
	}
}

func convertPerformance(f types.FeedbackMetrics) PerformanceSnapshot {
	totalPnL, _ := f.TotalPnL.Float64()
	return PerformanceSnapshot{
		WinRate:           f.WinRate,
		Trades:            f.Trades,
		TotalPnL:          totalPnL,
		ConsecutiveWins:   f.ConsecutiveWins,
		ConsecutiveLosses: f.ConsecutiveLosses,
		DrawdownPct:       f.DrawdownPct,
		BestStrategy:      f.BestStrategy,
		Recommendations:   f.Recommendations,
	}
}

func centsToDollars(cents int) float64 {
	return float64(cents) / 100
}
