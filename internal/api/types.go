package api

import (
	"time"

	"polymarket-mm/internal/config"
)

// DashboardSnapshot is the complete point-in-time state served by
// /api/snapshot and pushed to every client on connect, mirroring the
// teacher's DashboardSnapshot but built around the Scheduler's portfolio/
// risk/performance state instead of per-market quotes.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	CycleIndex     int64   `json:"cycle_index"`
	BreakerTripped bool    `json:"breaker_tripped"`

	Portfolio   PortfolioSnapshot `json:"portfolio"`
	Risk        RiskSnapshot      `json:"risk"`
	Performance PerformanceSnapshot `json:"performance"`
	Config      ConfigSummary     `json:"config"`
}

// PortfolioSnapshot is the dashboard-facing view of the account's cash,
// equity, and open positions. Cent-denominated fields from
// types.PortfolioSnapshot are converted to dollars here, at the JSON
// boundary, the same place the Scheduler converts decimal.Decimal risk
// params to float64 for AUTONOMOUS_DECISION events.
type PortfolioSnapshot struct {
	Cash      float64             `json:"cash"`
	Equity    float64             `json:"equity"`
	DailyPnL  float64             `json:"daily_pnl"`
	Positions map[string]Position `json:"positions"`
}

// Position is the dashboard-facing view of a single open position. Side
// is derived from the sign of the underlying signed quantity.
type Position struct {
	Ticker        string  `json:"ticker"`
	Side          string  `json:"side"` // "YES" or "NO"
	Qty           int     `json:"qty"`  // unsigned contract count
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// RiskSnapshot is the dashboard-facing view of the currently active,
// adaptively-tuned RiskParams.
type RiskSnapshot struct {
	MaxPositionPct            float64 `json:"max_position_pct"`
	MinEdgePct                float64 `json:"min_edge_pct"`
	KellyFraction             float64 `json:"kelly_fraction"`
	MaxDailyLossPct           float64 `json:"max_daily_loss_pct"`
	MaxConcentrationPct       float64 `json:"max_concentration_pct"`
	MaxCorrelationGroupCount  int     `json:"max_correlation_group_count"`
	CorrelationEdgeMultiplier float64 `json:"correlation_edge_multiplier"`
}

// PerformanceSnapshot is the dashboard-facing view of the Performance
// Tracker's running feedback metrics.
type PerformanceSnapshot struct {
	WinRate           float64  `json:"win_rate"`
	Trades            int      `json:"trades"`
	TotalPnL          float64  `json:"total_pnl"`
	ConsecutiveWins   int      `json:"consecutive_wins"`
	ConsecutiveLosses int      `json:"consecutive_losses"`
	DrawdownPct       float64  `json:"drawdown_pct"`
	BestStrategy      string   `json:"best_strategy,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// ConfigSummary exposes the operationally-relevant configuration: cycle
// timing, risk seed values, scanner/executor tuning, and mode. Secrets
// (wallet key, exchange credentials) are never included.
type ConfigSummary struct {
	Mode string `json:"mode"`

	CycleIntervalSeconds int `json:"cycle_interval_seconds"`

	ScannerConcurrency int `json:"scanner_concurrency"`
	ScannerMarketLimit int `json:"scanner_market_limit"`

	RiskMaxPositionPct   float64 `json:"risk_max_position_pct"`
	RiskMinEdgePct       float64 `json:"risk_min_edge_pct"`
	RiskKellyFraction    float64 `json:"risk_kelly_fraction"`
	RiskMaxDailyLossPct  float64 `json:"risk_max_daily_loss_pct"`

	ExecutorTopKAdmitted    int `json:"executor_top_k_admitted"`
	ExecutorOrderDeadlineMs int `json:"executor_order_deadline_ms"`

	ReasoningDeadlineMs int `json:"reasoning_deadline_ms"`
}

// NewConfigSummary builds a ConfigSummary from the running Config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Mode: cfg.Mode,

		CycleIntervalSeconds: cfg.Cycle.IntervalSeconds,

		ScannerConcurrency: cfg.Scanner.Concurrency,
		ScannerMarketLimit: cfg.Scanner.MarketLimit,

		RiskMaxPositionPct:  cfg.Risk.MaxPositionPct,
		RiskMinEdgePct:      cfg.Risk.MinEdgePct,
		RiskKellyFraction:   cfg.Risk.KellyFraction,
		RiskMaxDailyLossPct: cfg.Risk.MaxDailyLossPct,

		ExecutorTopKAdmitted:    cfg.Executor.TopKAdmitted,
		ExecutorOrderDeadlineMs: cfg.Executor.OrderDeadlineMs,

		ReasoningDeadlineMs: cfg.Reasoning.DeadlineMs,
	}
}
