// Package types defines the shared vocabulary of the trading core — markets,
// order books, opportunities, positions, and the events that flow between
// the Scheduler and its components. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies which outcome of a binary market a position or
// opportunity concerns.
type Side string

const (
	YES Side = "YES"
	NO  Side = "NO"
)

// MarketStatus is the lifecycle state of a market as reported by the
// exchange.
type MarketStatus string

const (
	StatusOpen    MarketStatus = "open"
	StatusSettled MarketStatus = "settled"
	StatusClosed  MarketStatus = "closed"
)

// OrderSide is an alias of Side kept distinct for order submission, where
// callers think in terms of buying/selling a side rather than holding it.
type OrderSide = Side

// OrderKind distinguishes limit from market orders at the Exchange Port.
type OrderKind string

const (
	OrderLimit  OrderKind = "limit"
	OrderMarket OrderKind = "market"
)

// StrategyName enumerates the opportunity-detection strategies the
// Evaluator runs per market.
type StrategyName string

const (
	StrategyArbitrage     StrategyName = "arbitrage"
	StrategySpreadCapture StrategyName = "spread_capture"
	StrategyValue         StrategyName = "value"
)

// ————————————————————————————————————————————————————————————————————————
// Market snapshot
// ————————————————————————————————————————————————————————————————————————

// Market is an immutable snapshot produced by the Scanner and consumed by
// the Evaluator. It is never mutated after creation.
type Market struct {
	Ticker       string       `json:"ticker"`
	Title        string       `json:"title"`
	Status       MarketStatus `json:"status"`
	Volume       int64        `json:"volume"`        // lifetime contracts traded
	OpenInterest int64        `json:"open_interest"`
}

// PriceSide holds the bid/ask price and size for one side of a market's
// order book. A zero Size with a zero Price represents an absent side.
type PriceSide struct {
	Bid     int `json:"bid"`      // cents, [0,100]
	Ask     int `json:"ask"`      // cents, [0,100]
	BidSize int `json:"bid_size"` // nonneg contracts
	AskSize int `json:"ask_size"` // nonneg contracts
}

// Present reports whether both the bid and ask of this side are populated.
func (p PriceSide) Present() bool { return p.Bid > 0 && p.Ask > 0 }

// OrderBook is a point-in-time snapshot of both sides of a binary market,
// keyed by the Market's ticker.
type OrderBook struct {
	Ticker    string    `json:"ticker"`
	Yes       PriceSide `json:"yes"`
	No        PriceSide `json:"no"`
	Timestamp time.Time `json:"timestamp"`
}

// MidYes returns the mid price of the YES side in cents as a float.
func (ob OrderBook) MidYes() float64 {
	return float64(ob.Yes.Bid+ob.Yes.Ask) / 2
}

// MidNo returns the mid price of the NO side in cents as a float.
func (ob OrderBook) MidNo() float64 {
	return float64(ob.No.Bid+ob.No.Ask) / 2
}

// ————————————————————————————————————————————————————————————————————————
// Opportunities
// ————————————————————————————————————————————————————————————————————————

// MarketOpportunity is a priced, sized trade candidate derived from a
// (Market, OrderBook) pair by one strategy branch of the Evaluator.
type MarketOpportunity struct {
	Ticker           string       `json:"ticker"`
	Side             Side         `json:"side"`
	EntryPrice       int          `json:"entry_price"` // cents, [1,99]
	Edge             float64      `json:"edge"`         // percent of notional, nonneg
	Confidence       float64      `json:"confidence"`   // [0,1]
	LiquidityScore   float64      `json:"liquidity_score"` // [0,1]
	Strategy         StrategyName `json:"strategy"`
	SuggestedSize    int          `json:"suggested_size"` // contracts, >=0
	Reasoning        string       `json:"reasoning"`
	CorrelationGroup string       `json:"correlation_group"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Score is the ranking value the Scheduler sorts opportunities by:
// edge · confidence · liquidity_score.
func (o MarketOpportunity) Score() float64 {
	return o.Edge * o.Confidence * o.LiquidityScore
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio
// ————————————————————————————————————————————————————————————————————————

// Position is the current holding in one ticker. Quantity is signed:
// positive holds YES contracts, negative holds NO contracts.
type Position struct {
	Ticker        string `json:"ticker"`
	Quantity      int    `json:"quantity"`
	EntryPrice    int    `json:"entry_price"`    // cents
	CurrentPrice  int    `json:"current_price"`  // cents
	UnrealizedPnL int    `json:"unrealized_pnl"` // cents, signed
}

// PortfolioSnapshot is the account state as reported by the Exchange Port
// at the start of a cycle.
type PortfolioSnapshot struct {
	Cash        int                 `json:"cash"`     // cents, nonneg
	Equity      int                 `json:"equity"`   // cents
	DailyPnL    int                 `json:"daily_pnl"` // cents, signed
	Positions   map[string]Position `json:"positions"`
	PeakEquity  int                 `json:"peak_equity"` // cents, monotonic nondecreasing
	DrawdownPct float64             `json:"drawdown_pct"` // nonneg
}

// DailyPnLPct expresses DailyPnL as a percentage of the equity at the start
// of the day. StartOfDayEquity must be positive; callers compute it from
// Equity - DailyPnL when not separately tracked.
func DailyPnLPct(dailyPnL, startOfDayEquity int) float64 {
	if startOfDayEquity <= 0 {
		return 0
	}
	return float64(dailyPnL) / float64(startOfDayEquity) * 100
}

// ————————————————————————————————————————————————————————————————————————
// Outcomes & risk parameters
// ————————————————————————————————————————————————————————————————————————

// TradeOutcome records the result of one executed order, used to update the
// Performance Tracker and optionally persisted to the audit log.
type TradeOutcome struct {
	Ticker      string       `json:"ticker"`
	Strategy    StrategyName `json:"strategy"`
	Side        Side         `json:"side"`
	Edge        float64      `json:"edge"`
	RealizedPnL int          `json:"realized_pnl"` // cents, signed
	LatencyMs   int64        `json:"latency_ms"`    // nonneg
	SlippagePct float64      `json:"slippage_pct"`  // signed
	Timestamp   time.Time    `json:"timestamp"`
}

// RiskParams is the tunable set the Risk Gate and its adaptive loop read
// and mutate each cycle. Percentage fields use decimal.Decimal because the
// adaptive loop multiplies them repeatedly across many cycles — float64
// would compound rounding error over a long-running process.
type RiskParams struct {
	MaxPositionPct           decimal.Decimal `json:"max_position_pct"`            // % of equity, default 15
	MinEdgePct               decimal.Decimal `json:"min_edge_pct"`                // default 2.0
	KellyFraction            decimal.Decimal `json:"kelly_fraction"`              // default 0.25, clamped [0.05,0.50]
	MaxDailyLossPct          decimal.Decimal `json:"max_daily_loss_pct"`          // default 10
	MaxConcentrationPct      decimal.Decimal `json:"max_concentration_pct"`       // default 20
	MaxCorrelationGroupCount int             `json:"max_correlation_group_count"` // default 2
	CorrelationEdgeMultiplier decimal.Decimal `json:"correlation_edge_multiplier"` // default 1.5
}

// DefaultRiskParams returns the spec-documented defaults.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		MaxPositionPct:            decimal.NewFromInt(15),
		MinEdgePct:                decimal.NewFromFloat(2.0),
		KellyFraction:             decimal.NewFromFloat(0.25),
		MaxDailyLossPct:           decimal.NewFromInt(10),
		MaxConcentrationPct:       decimal.NewFromInt(20),
		MaxCorrelationGroupCount:  2,
		CorrelationEdgeMultiplier: decimal.NewFromFloat(1.5),
	}
}

// StrategyStats is the running aggregate the Performance Tracker maintains
// per strategy name.
type StrategyStats struct {
	Count         int             `json:"count"`
	AvgEdge       float64         `json:"avg_edge"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

// PerformanceState is the Scheduler-owned running record of trading
// performance, updated on every TradeOutcome and portfolio refresh.
type PerformanceState struct {
	Wins               int                              `json:"wins"`
	Losses             int                               `json:"losses"`
	TotalPnL           decimal.Decimal                   `json:"total_pnl"`
	ConsecutiveWins    int                               `json:"consecutive_wins"`
	ConsecutiveLosses  int                               `json:"consecutive_losses"`
	MaxDrawdownPct     float64                            `json:"max_drawdown_pct"`
	PeakEquity         int                                `json:"peak_equity"`
	PerStrategy        map[StrategyName]StrategyStats    `json:"per_strategy"`
}

// NewPerformanceState returns a zeroed PerformanceState ready for use.
func NewPerformanceState() PerformanceState {
	return PerformanceState{
		TotalPnL:    decimal.Zero,
		PerStrategy: make(map[StrategyName]StrategyStats),
	}
}

// WinRate returns wins/(wins+losses), or 0 when no trades have settled.
func (p PerformanceState) WinRate() float64 {
	total := p.Wins + p.Losses
	if total == 0 {
		return 0
	}
	return float64(p.Wins) / float64(total)
}

// FeedbackMetrics is produced on demand from PerformanceState with
// human-readable recommendations derived from threshold rules.
type FeedbackMetrics struct {
	WinRate            float64  `json:"win_rate"`
	Trades             int      `json:"trades"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	ConsecutiveWins    int      `json:"consecutive_wins"`
	ConsecutiveLosses  int      `json:"consecutive_losses"`
	DrawdownPct        float64  `json:"drawdown_pct"`
	Recommendations    []string `json:"recommendations"`
	BestStrategy       string   `json:"best_strategy,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Reasoning Port
// ————————————————————————————————————————————————————————————————————————

// DecisionKind tags the variant carried by a Decision.
type DecisionKind string

const (
	DecisionTrade  DecisionKind = "trade"
	DecisionHold   DecisionKind = "hold"
	DecisionAdjust DecisionKind = "adjust"
	DecisionClose  DecisionKind = "close"
)

// Decision is the tagged result of the Reasoning Port's decide operation.
// Only the fields relevant to Kind are populated; this mirrors the JSON
// shape the reasoning boundary returns rather than a closed Go sum type,
// since the value round-trips through an HTTP/JSON adapter.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	// Trade
	Ticker     string  `json:"ticker,omitempty"`
	Side       Side    `json:"side,omitempty"`
	Size       int     `json:"size,omitempty"`
	PriceHint  int     `json:"price_hint,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Adjust
	RiskParam string  `json:"risk_param,omitempty"`
	NewValue  float64 `json:"new_value,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`
}

// ReasoningContext is the packet handed to the Reasoning Port each cycle.
type ReasoningContext struct {
	Portfolio        PortfolioSnapshot   `json:"portfolio"`
	Opportunities    []MarketOpportunity `json:"opportunities"`
	Performance      FeedbackMetrics     `json:"performance"`
	RiskParams       RiskParams          `json:"risk_params"`
	ExternalSignals  []string            `json:"external_signals,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Outbound event stream
// ————————————————————————————————————————————————————————————————————————

// EventType enumerates the outbound event taxonomy of §6.
type EventType string

const (
	EventCycleBegin         EventType = "CYCLE_BEGIN"
	EventCycleEnd           EventType = "CYCLE_END"
	EventUpdatePortfolio    EventType = "UPDATE_PORTFOLIO"
	EventOpportunities      EventType = "OPPORTUNITIES"
	EventExecution          EventType = "EXECUTION"
	EventRiskBlocked        EventType = "RISK_BLOCKED"
	EventAutonomousDecision EventType = "AUTONOMOUS_DECISION"
	EventError              EventType = "ERROR"
)

// Severity classifies ERROR events.
type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is the envelope for every record on the outbound channel.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// CycleBoundaryData is the payload of CYCLE_BEGIN/CYCLE_END.
type CycleBoundaryData struct {
	CycleIndex int64 `json:"cycle_index"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// ExecutionData is the payload of an EXECUTION event.
type ExecutionData struct {
	OrderID     string  `json:"order_id"`
	Ticker      string  `json:"ticker"`
	Side        Side    `json:"side"`
	Qty         int     `json:"qty"`
	FillPrice   int     `json:"fill_price"`
	LatencyMs   int64   `json:"latency_ms"`
	SlippagePct float64 `json:"slippage_pct"`
}

// RiskBlockedData is the payload of a RISK_BLOCKED event.
type RiskBlockedData struct {
	Reason string `json:"reason"`
	Ticker string `json:"ticker,omitempty"`
}

// AutonomousDecisionData records a risk-param adjustment with its before
// and after values.
type AutonomousDecisionData struct {
	Param  string  `json:"param"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Reason string  `json:"reason"`
}

// ErrorData is the payload of an ERROR event.
type ErrorData struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// ————————————————————————————————————————————————————————————————————————
// Exchange Port order submission
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is passed to the Exchange Port's submit_order operation.
type OrderRequest struct {
	Ticker   string    `json:"ticker"`
	Side     Side      `json:"side"`
	Price    int       `json:"price"` // cents
	Quantity int       `json:"quantity"`
	Kind     OrderKind `json:"kind"`
}

// OrderResult is the successful response from submit_order.
type OrderResult struct {
	OrderID   string `json:"order_id"`
	FillPrice int    `json:"fill_price"` // cents
	FillQty   int    `json:"fill_qty"`
}

// OrderAttemptState is the per-attempt state machine of §4.7.
type OrderAttemptState string

const (
	OrderSubmitted OrderAttemptState = "submitted"
	OrderFilled    OrderAttemptState = "filled"
	OrderPartial   OrderAttemptState = "partial"
	OrderRejected  OrderAttemptState = "rejected"
	OrderTimeout   OrderAttemptState = "timeout"
)

// CacheEntry pairs a value with the time it was stored. internal/cache does
// not use it: the Market Cache keeps its own entry type, which adds an
// insertion sequence for eviction. Expiry is evaluated by comparing against
// a TTL at read time, not stored on the entry itself.
type CacheEntry[T any] struct {
	Value   T
	StoredAt time.Time
}
