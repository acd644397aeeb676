// Package evaluator implements the Strategy Evaluator (C5): three pure
// strategy functions (arbitrage, spread-capture, value) run over a
// (Market, OrderBook) pair, with the best-scoring surviving opportunity
// returned per market. Evaluation is pure and idempotent given its inputs,
// so results are cached by (ticker, time bucket) rather than recomputed
// every cycle.
package evaluator

import (
	"fmt"
	"math"
	"time"

	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/types"
)

// liquidityRef is L_ref from §4.5: the book size that saturates
// liquidity_score to 1.
const liquidityRef = 500.0

const (
	arbitrageEdgeThreshold  = 2.0
	spreadCaptureMaxSpread  = 3
	spreadCaptureMinLiquidity = 0.04
	valueEdgeThreshold      = 1.5
)

// Evaluator runs the three strategy branches over cached (Market, OrderBook)
// snapshots and returns the best-scoring opportunity per market.
type Evaluator struct {
	opportunityCache *cache.Cache[types.MarketOpportunity]
	bucket           time.Duration
}

// New builds an Evaluator. bucket is the time_bucket width used to key the
// opportunity cache (§4.5: time_bucket = floor(now/ttl)).
func New(opportunityCache *cache.Cache[types.MarketOpportunity], bucket time.Duration) *Evaluator {
	return &Evaluator{opportunityCache: opportunityCache, bucket: bucket}
}

// EvaluateAll runs Evaluate over every snapshot and returns the
// opportunities that survived, in no particular order — ranking is the
// Scheduler's job once opportunities are pooled with sizing.
func (e *Evaluator) EvaluateAll(snapshots []cache.MarketSnapshot, params types.RiskParams, now time.Time) []types.MarketOpportunity {
	out := make([]types.MarketOpportunity, 0, len(snapshots))
	for _, snap := range snapshots {
		if opp, ok := e.Evaluate(snap, params, now); ok {
			out = append(out, opp)
		}
	}
	return out
}

// Evaluate runs all three strategy branches over one (Market, OrderBook)
// snapshot, rejects any branch whose edge is below params.MinEdgePct or
// whose chosen side is missing from the book, and returns the
// best-scoring survivor by edge·confidence·liquidity_score.
func (e *Evaluator) Evaluate(snap cache.MarketSnapshot, params types.RiskParams, now time.Time) (types.MarketOpportunity, bool) {
	cacheKey := e.cacheKey(snap.Market.Ticker, now)
	if cached, ok := e.opportunityCache.Get(cacheKey); ok {
		return cached, true
	}

	minEdge, _ := params.MinEdgePct.Float64()
	group := risk.GroupOf(snap.Market.Title)

	candidates := make([]types.MarketOpportunity, 0, 3)
	if opp, ok := arbitrage(snap, group, now); ok {
		candidates = append(candidates, opp)
	}
	if opp, ok := spreadCapture(snap, group, now); ok {
		candidates = append(candidates, opp)
	}
	if opp, ok := value(snap, group, now); ok {
		candidates = append(candidates, opp)
	}

	best, ok := bestSurviving(candidates, minEdge)
	if !ok {
		return types.MarketOpportunity{}, false
	}

	e.opportunityCache.Put(cacheKey, best)
	return best, true
}

func (e *Evaluator) cacheKey(ticker string, now time.Time) string {
	bucket := now.Unix() / int64(e.bucket.Seconds())
	return fmt.Sprintf("%s:%d", ticker, bucket)
}

// bestSurviving rejects every candidate below minEdge and returns the one
// with the highest Score().
func bestSurviving(candidates []types.MarketOpportunity, minEdge float64) (types.MarketOpportunity, bool) {
	var best types.MarketOpportunity
	found := false
	for _, c := range candidates {
		if c.Edge < minEdge {
			continue
		}
		if !found || c.Score() > best.Score() {
			best = c
			found = true
		}
	}
	return best, found
}

func liquidityScore(yes types.PriceSide) float64 {
	minSize := math.Min(float64(yes.BidSize), float64(yes.AskSize))
	return math.Min(1, minSize/liquidityRef)
}

// arbitrage fires when yes_bid+no_bid deviates from 100 by more than the
// threshold — the two sides of the book disagree on whether they sum to a
// certain outcome.
func arbitrage(snap cache.MarketSnapshot, group string, now time.Time) (types.MarketOpportunity, bool) {
	book := snap.Book
	if !book.Yes.Present() || !book.No.Present() {
		return types.MarketOpportunity{}, false
	}

	sum := book.Yes.Bid + book.No.Bid
	deviation := math.Abs(float64(sum - 100))
	if deviation <= arbitrageEdgeThreshold {
		return types.MarketOpportunity{}, false
	}

	side := types.YES
	entryPrice := book.Yes.Ask
	if sum >= 100 {
		side = types.NO
		entryPrice = book.No.Ask
	}

	return types.MarketOpportunity{
		Ticker:           snap.Market.Ticker,
		Side:             side,
		EntryPrice:       entryPrice,
		Edge:             deviation,
		Confidence:       0.90,
		LiquidityScore:   liquidityScore(book.Yes),
		Strategy:         types.StrategyArbitrage,
		CorrelationGroup: group,
		Reasoning:        fmt.Sprintf("yes_bid+no_bid=%d deviates %.1f cents from 100", sum, deviation),
		CreatedAt:        now,
	}, true
}

// spreadCapture fires on a tight, liquid YES spread: quote one cent above
// the bid and collect the edge as the spread narrows or the order fills at
// the better price.
func spreadCapture(snap cache.MarketSnapshot, group string, now time.Time) (types.MarketOpportunity, bool) {
	book := snap.Book
	if !book.Yes.Present() {
		return types.MarketOpportunity{}, false
	}

	spread := book.Yes.Ask - book.Yes.Bid
	liquidity := liquidityScore(book.Yes)
	if spread >= spreadCaptureMaxSpread || liquidity < spreadCaptureMinLiquidity {
		return types.MarketOpportunity{}, false
	}

	return types.MarketOpportunity{
		Ticker:           snap.Market.Ticker,
		Side:             types.YES,
		EntryPrice:       book.Yes.Bid + 1,
		Edge:             float64(spread) / 2,
		Confidence:       0.70,
		LiquidityScore:   liquidity,
		Strategy:         types.StrategySpreadCapture,
		CorrelationGroup: group,
		Reasoning:        fmt.Sprintf("yes spread %d cents under threshold, liquidity_score=%.2f", spread, liquidity),
		CreatedAt:        now,
	}, true
}

// value fires when the YES and NO mids together deviate from 100 cents,
// implying one side is mispriced relative to the other.
func value(snap cache.MarketSnapshot, group string, now time.Time) (types.MarketOpportunity, bool) {
	book := snap.Book
	if !book.Yes.Present() || !book.No.Present() {
		return types.MarketOpportunity{}, false
	}

	yesMid := book.MidYes()
	noMid := book.MidNo()
	deviation := math.Abs(100 - (yesMid + noMid))
	if deviation <= valueEdgeThreshold {
		return types.MarketOpportunity{}, false
	}

	// The underpriced side is the one whose mid is lower relative to its
	// complement — buying it captures the gap as the market corrects.
	side := types.YES
	entryPrice := book.Yes.Ask
	if noMid < yesMid {
		side = types.NO
		entryPrice = book.No.Ask
	}

	return types.MarketOpportunity{
		Ticker:           snap.Market.Ticker,
		Side:             side,
		EntryPrice:       entryPrice,
		Edge:             deviation,
		Confidence:       0.60,
		LiquidityScore:   liquidityScore(book.Yes),
		Strategy:         types.StrategyValue,
		CorrelationGroup: group,
		Reasoning:        fmt.Sprintf("yes_mid+no_mid=%.1f deviates %.1f cents from 100", yesMid+noMid, deviation),
		CreatedAt:        now,
	}, true
}
