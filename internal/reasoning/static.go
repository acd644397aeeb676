package reasoning

import (
	"context"

	"polymarket-mm/internal/types"
)

// Static is a deterministic Reasoning Port that always returns Hold. It is
// the fallback adapter used when no reasoning.url is configured, so paper
// mode can run end to end without a reasoning service — the Risk Gate's
// filtering and sizing still runs every cycle, only the final decide step
// is pinned to Hold rather than delegated.
type Static struct{}

// NewStatic returns a Static reasoner.
func NewStatic() *Static { return &Static{} }

// Decide always returns a Hold decision.
func (s *Static) Decide(_ context.Context, _ types.ReasoningContext) (types.Decision, error) {
	return types.Decision{
		Kind:      types.DecisionHold,
		Reasoning: "static reasoner: holding by default",
	}, nil
}
