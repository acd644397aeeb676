// Package reasoning implements the Reasoning Port (C3): the single decide
// operation the Scheduler calls once per cycle with a ReasoningContext and
// gets back a tagged Decision. Two adapters satisfy Port: HTTPReasoner,
// which forwards the context to an external HTTP/JSON reasoning service,
// and Static, a deterministic always-Hold adapter used when no reasoning
// URL is configured.
package reasoning

import (
	"context"

	"polymarket-mm/internal/types"
)

// Port is the Reasoning boundary: decide(context) -> Decision.
type Port interface {
	Decide(ctx context.Context, rc types.ReasoningContext) (types.Decision, error)
}
