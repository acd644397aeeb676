package api

import (
	"polymarket-mm/internal/types"
)

// DashboardEvent is the wrapper broadcast to every connected dashboard
// client: either a cycle event forwarded verbatim from the Scheduler's
// event stream, or a synthetic "snapshot" sent on connect. GET
// /api/snapshot returns the bare DashboardSnapshot without this wrapper.
type DashboardEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewCycleEvent wraps a Scheduler event for broadcast, keyed by its §6
// event type ("CYCLE_BEGIN", "EXECUTION", ...) so clients can dispatch on
// the same string the event log uses.
func NewCycleEvent(evt types.Event) DashboardEvent {
	return DashboardEvent{Type: string(evt.Type), Data: evt}
}
