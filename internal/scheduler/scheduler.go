// Package scheduler implements the Cycle Scheduler (C9): the single
// logical writer that sequences every other component once per cycle —
// observe portfolio, adapt risk, scan, evaluate, gate, decide, execute,
// report — and owns RiskParams and PerformanceState for the life of the
// process. Modeled on the teacher's engine.Engine: a New/Start/Stop
// lifecycle built around one root context, one cancel func, and one
// sync.WaitGroup, with a single background loop instead of the teacher's
// per-market goroutine fan-out.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/evaluator"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/executor"
	"polymarket-mm/internal/performance"
	"polymarket-mm/internal/reasoning"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/scanner"
	"polymarket-mm/internal/store"
	"polymarket-mm/internal/types"
)

// eventBufferSize bounds the outbound event channel per §5's backpressure
// rule: EXECUTION and ERROR events wait for room until the Scheduler
// stops; every other event type is dropped while the buffer is full.
const eventBufferSize = 256

// Scheduler runs the §4.9 cycle loop. It is the sole writer of riskParams
// and the sole caller of PerformanceTracker's mutating methods (Snapshot
// only reads Feedback, which the Tracker's own mutex guards), satisfying the §5
// single-writer requirement without any lock of its own; stateMu exists
// only so an HTTP snapshot handler can read the latest portfolio/risk
// params/cycle index without racing the cycle goroutine, the same
// read-mostly discipline the teacher's risk.Manager uses for
// GetRiskSnapshot.
type Scheduler struct {
	cfg config.Config

	port     exchange.Port
	scan     *scanner.Scanner
	eval     *evaluator.Evaluator
	gate     *risk.Gate
	exec     *executor.Executor
	reasoner reasoning.Port
	tracker  *performance.Tracker
	persist  *store.Store
	logger   *slog.Logger

	riskParams types.RiskParams

	breakerTrippedDay string // "2006-01-02" of the calendar day the breaker tripped, "" if clear
	cycleIndex        int64
	backoff           time.Duration

	stateMu       sync.RWMutex
	lastPortfolio types.PortfolioSnapshot

	events chan types.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Snapshot is a read-only view of the Scheduler's latest cycle state, for
// the dashboard's /api/snapshot endpoint.
type Snapshot struct {
	CycleIndex     int64                   `json:"cycle_index"`
	Portfolio      types.PortfolioSnapshot `json:"portfolio"`
	RiskParams     types.RiskParams        `json:"risk_params"`
	Performance    types.FeedbackMetrics   `json:"performance"`
	BreakerTripped bool                    `json:"breaker_tripped"`
}

// Snapshot returns the latest portfolio, risk params, and performance
// feedback observed by the cycle loop. Safe to call concurrently with a
// running Scheduler.
func (s *Scheduler) Snapshot() Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return Snapshot{
		CycleIndex:     s.cycleIndex,
		Portfolio:      s.lastPortfolio,
		RiskParams:     s.riskParams,
		Performance:    s.tracker.Feedback(),
		BreakerTripped: s.breakerTrippedDay != "",
	}
}

// New wires a Scheduler from already-constructed components. It restores
// RiskParams and PerformanceState from persist if present, otherwise
// starts from types.DefaultRiskParams() and a zeroed PerformanceState.
func New(
	cfg config.Config,
	port exchange.Port,
	scan *scanner.Scanner,
	eval *evaluator.Evaluator,
	gate *risk.Gate,
	exec *executor.Executor,
	reasoner reasoning.Port,
	tracker *performance.Tracker,
	persist *store.Store,
	logger *slog.Logger,
) (*Scheduler, error) {
	riskParams := types.DefaultRiskParams()
	if loaded, ok, err := persist.LoadRiskParams(); err != nil {
		return nil, err
	} else if ok {
		riskParams = loaded
	}

	if state, ok, err := persist.LoadPerformanceState(); err != nil {
		return nil, err
	} else if ok {
		tracker.Restore(state)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:        cfg,
		port:       port,
		scan:       scan,
		eval:       eval,
		gate:       gate,
		exec:       exec,
		reasoner:   reasoner,
		tracker:    tracker,
		persist:    persist,
		logger:     logger.With("component", "scheduler"),
		riskParams: riskParams,
		events:     make(chan types.Event, eventBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Events returns the outbound event stream (§6). Consume it for the life
// of the Scheduler; the channel is closed by Stop.
func (s *Scheduler) Events() <-chan types.Event {
	return s.events
}

// Start launches the cycle loop in a background goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop cancels the cycle loop, waits for it to return, persists final
// state, and closes the event channel.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.wg.Wait()

	if err := s.persist.SaveRiskParams(s.riskParams); err != nil {
		s.logger.Error("failed to persist risk params on shutdown", "error", err)
	}
	if err := s.persist.SavePerformanceState(s.tracker.State()); err != nil {
		s.logger.Error("failed to persist performance state on shutdown", "error", err)
	}

	close(s.events)
	s.logger.Info("scheduler stopped")
}

// run is the main loop: one iteration of runCycle per cycle boundary,
// sleeping the configured interval plus any accumulated backoff between
// iterations.
func (s *Scheduler) run() {
	ticker := time.NewTicker(interval(s.cfg))
	defer ticker.Stop()

	s.runCycle()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.backoff > 0 {
				select {
				case <-time.After(s.backoff):
				case <-s.ctx.Done():
					return
				}
				s.backoff = 0
			}
			s.runCycle()
		}
	}
}

// runCycle executes the §4.9 nine-step algorithm once.
func (s *Scheduler) runCycle() {
	start := time.Now()
	s.stateMu.Lock()
	s.cycleIndex++
	cycleIndex := s.cycleIndex
	s.stateMu.Unlock()
	s.emit(types.EventCycleBegin, types.CycleBoundaryData{CycleIndex: cycleIndex})

	// Step 1: portfolio.
	portfolioCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	portfolio, err := s.port.GetPortfolio(portfolioCtx)
	cancel()
	if err != nil {
		s.emitError(types.SeverityWarn, errs.ClassifyOf(err), "get_portfolio failed: "+err.Error())
		s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
		return
	}
	s.emit(types.EventUpdatePortfolio, portfolio)
	s.stateMu.Lock()
	s.lastPortfolio = portfolio
	s.stateMu.Unlock()

	// Step 2: feed the observation to the Performance Tracker.
	s.tracker.ObservePortfolio(portfolio)

	// Step 3: adapt risk params from the updated performance state.
	before := s.riskParams
	adapted := s.gate.Adapt(s.tracker.State(), before)
	s.stateMu.Lock()
	s.riskParams = adapted
	s.stateMu.Unlock()
	s.emitParamChange("kelly_fraction", before.KellyFraction, adapted.KellyFraction)
	s.emitParamChange("min_edge_pct", before.MinEdgePct, adapted.MinEdgePct)

	// Circuit breaker: evaluated after step 1, halts steps 4-8 for the
	// rest of the calendar day.
	today := start.Format("2006-01-02")
	if s.breakerTrippedDay == today {
		s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
		return
	}

	startOfDayEquity := portfolio.Equity - portfolio.DailyPnL
	dailyPnLPct := types.DailyPnLPct(portfolio.DailyPnL, startOfDayEquity)
	maxDailyLossPct, _ := adapted.MaxDailyLossPct.Float64()
	if dailyPnLPct <= -maxDailyLossPct {
		s.stateMu.Lock()
		s.breakerTrippedDay = today
		s.stateMu.Unlock()
		s.emitError(types.SeverityCritical, errs.KindCircuitBreakerTripped, "daily loss limit reached, trading halted for the day")
		s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
		return
	}

	// Step 4: scan.
	scanCtx, scanCancel := context.WithTimeout(s.ctx, interval(s.cfg)/2)
	snapshots, err := s.scan.Scan(scanCtx)
	scanCancel()
	if err != nil {
		s.emitError(types.SeverityWarn, errs.ClassifyOf(err), "scan failed: "+err.Error())
		s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
		return
	}

	// Step 5: evaluate and rank by score descending.
	opps := s.eval.EvaluateAll(snapshots, s.riskParams, start)
	rankByScoreDescending(opps)
	s.emit(types.EventOpportunities, opps)

	// Step 6: correlation + Kelly gate, then top-K admission.
	admitted := s.gate.FilterAndSize(opps, portfolio, s.riskParams)
	for _, rejected := range blocked(opps, admitted) {
		s.emit(types.EventRiskBlocked, types.RiskBlockedData{Reason: "risk_gate_rejected", Ticker: rejected.Ticker})
	}
	topK := s.cfg.Executor.TopKAdmitted
	if len(admitted) > topK {
		admitted = admitted[:topK]
	}
	if len(admitted) == 0 {
		s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
		return
	}

	// Step 7: reasoning decide, bounded by min(3s, I/2), falling back to
	// admitted[0] as a plain Trade on timeout or unavailability.
	rc := types.ReasoningContext{
		Portfolio:     portfolio,
		Opportunities: admitted,
		Performance:   s.tracker.Feedback(),
		RiskParams:    s.riskParams,
	}
	reasonCtx, reasonCancel := context.WithTimeout(s.ctx, s.cfg.ReasoningDeadline())
	decision, err := s.reasoner.Decide(reasonCtx, rc)
	reasonCancel()
	if err != nil {
		s.emitError(types.SeverityWarn, errs.KindReasonerUnavailable, "reasoning port unavailable, falling back to top opportunity")
		decision = fallbackDecision(admitted[0])
	}

	// Step 8: execute on Trade only.
	if decision.Kind == types.DecisionTrade {
		opp, ok := matchOpportunity(admitted, decision)
		if !ok {
			s.logger.Warn("decision named an opportunity not in the admitted set", "ticker", decision.Ticker, "side", decision.Side)
		} else {
			s.executeOpportunity(opp)
		}
	}

	// Step 9: cycle end.
	s.emit(types.EventCycleEnd, types.CycleBoundaryData{CycleIndex: cycleIndex, DurationMs: time.Since(start).Milliseconds()})
}

// executeOpportunity runs the Executor on opp and folds the result into
// the Performance Tracker and audit log on a fill; a resting order (zero
// fill) records nothing this cycle, and RateLimited errors apply a
// one-cycle backoff per §4.7/§5.
func (s *Scheduler) executeOpportunity(opp types.MarketOpportunity) {
	deadline := time.Duration(s.cfg.Executor.OrderDeadlineMs) * time.Millisecond
	orderCtx, cancel := context.WithTimeout(s.ctx, deadline)
	result, err := s.exec.Execute(orderCtx, opp)
	cancel()

	if err != nil {
		kind := errs.ClassifyOf(err)
		severity := types.SeverityWarn
		if kind == errs.KindPermanent {
			severity = types.SeverityError
		}
		s.emitError(severity, kind, "order execution failed: "+err.Error())
		if kind == errs.KindRateLimited {
			s.backoff = interval(s.cfg)
		}
		return
	}

	if result.State == types.OrderSubmitted {
		s.logger.Debug("order resting, no outcome to record this cycle", "ticker", opp.Ticker)
		return
	}

	s.tracker.RecordOutcome(result.Outcome)
	if err := s.persist.AppendOutcome(result.Outcome); err != nil {
		s.logger.Error("failed to append trade outcome to audit log", "error", err)
	}

	s.emit(types.EventExecution, types.ExecutionData{
		OrderID:     result.Fill.OrderID,
		Ticker:      opp.Ticker,
		Side:        opp.Side,
		Qty:         result.Fill.FillQty,
		FillPrice:   result.Fill.FillPrice,
		LatencyMs:   result.Outcome.LatencyMs,
		SlippagePct: result.Outcome.SlippagePct,
	})
}

// emit sends an event, dropping non-essential types under backpressure
// per §5 (trade/error events always block rather than drop).
func (s *Scheduler) emit(t types.EventType, data interface{}) {
	evt := types.Event{Type: t, Timestamp: time.Now(), Data: data}
	if t == types.EventExecution || t == types.EventError {
		select {
		case s.events <- evt:
		case <-s.ctx.Done():
		}
		return
	}
	select {
	case s.events <- evt:
	default:
		s.logger.Debug("dropping event under backpressure", "type", t)
	}
}

// emitParamChange emits an AUTONOMOUS_DECISION event when the adaptive
// loop moved a RiskParams field, per S5's before/after verification.
func (s *Scheduler) emitParamChange(param string, before, after decimal.Decimal) {
	if before.Equal(after) {
		return
	}
	beforeF, _ := before.Float64()
	afterF, _ := after.Float64()
	s.emit(types.EventAutonomousDecision, types.AutonomousDecisionData{
		Param:  param,
		Before: beforeF,
		After:  afterF,
		Reason: "performance-adaptive loop",
	})
}

func (s *Scheduler) emitError(severity types.Severity, kind errs.Kind, message string) {
	s.logger.Warn("cycle error", "severity", severity, "code", kind, "message", message)
	s.emit(types.EventError, types.ErrorData{Severity: severity, Code: string(kind), Message: message})
}

// rankByScoreDescending sorts opps in place by Score descending, the
// ranking rule of §4.9 step 5.
func rankByScoreDescending(opps []types.MarketOpportunity) {
	for i := 1; i < len(opps); i++ {
		for j := i; j > 0 && opps[j].Score() > opps[j-1].Score(); j-- {
			opps[j], opps[j-1] = opps[j-1], opps[j]
		}
	}
}

// blocked returns the opps entries absent from admitted, by (ticker,
// side) identity, for RISK_BLOCKED reporting.
func blocked(opps, admitted []types.MarketOpportunity) []types.MarketOpportunity {
	keep := make(map[string]bool, len(admitted))
	for _, a := range admitted {
		keep[a.Ticker+"|"+string(a.Side)] = true
	}
	var out []types.MarketOpportunity
	for _, o := range opps {
		if !keep[o.Ticker+"|"+string(o.Side)] {
			out = append(out, o)
		}
	}
	return out
}

// matchOpportunity finds the admitted opportunity named by decision.
func matchOpportunity(admitted []types.MarketOpportunity, decision types.Decision) (types.MarketOpportunity, bool) {
	for _, opp := range admitted {
		if opp.Ticker == decision.Ticker && opp.Side == decision.Side {
			if decision.Size > 0 {
				opp.SuggestedSize = decision.Size
			}
			return opp, true
		}
	}
	return types.MarketOpportunity{}, false
}

// fallbackDecision builds the plain Trade decision used when the
// Reasoning Port times out or errors, per §4.9 step 7 and §7's
// ReasonerUnavailable handling.
func fallbackDecision(opp types.MarketOpportunity) types.Decision {
	return types.Decision{
		Kind:       types.DecisionTrade,
		Ticker:     opp.Ticker,
		Side:       opp.Side,
		Size:       opp.SuggestedSize,
		PriceHint:  opp.EntryPrice,
		Confidence: opp.Confidence,
		Reasoning:  "reasoner unavailable, falling back to top-ranked admitted opportunity",
	}
}

// interval returns the configured cycle interval as a time.Duration.
func interval(cfg config.Config) time.Duration {
	return time.Duration(cfg.Cycle.IntervalSeconds) * time.Second
}
