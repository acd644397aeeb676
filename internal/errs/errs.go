// Package errs defines the error-kind taxonomy ports convert transport
// failures into at their boundary. Nothing above a port inspects HTTP
// status codes or raw transport error strings; it inspects a Kind instead.
package errs

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", ErrTransport) at the
// point a transport failure is classified so errors.Is/As keeps working
// across package boundaries.
var (
	ErrTransport            = errors.New("transport error")
	ErrRateLimited          = errors.New("rate limited")
	ErrPermanent            = errors.New("permanent error")
	ErrDeadlineExceeded     = errors.New("deadline exceeded")
	ErrValidation           = errors.New("validation error")
	ErrReasonerUnavailable  = errors.New("reasoner unavailable")
	ErrRiskBlocked          = errors.New("risk blocked")
	ErrCircuitBreakerTripped = errors.New("circuit breaker tripped")
)

// Kind identifies which sentinel an error wraps, for logging/event
// classification.
type Kind string

const (
	KindTransport            Kind = "transport"
	KindRateLimited          Kind = "rate_limited"
	KindPermanent            Kind = "permanent"
	KindDeadlineExceeded     Kind = "deadline_exceeded"
	KindValidation           Kind = "validation"
	KindReasonerUnavailable  Kind = "reasoner_unavailable"
	KindRiskBlocked          Kind = "risk_blocked"
	KindCircuitBreakerTripped Kind = "circuit_breaker_tripped"
	KindUnknown              Kind = "unknown"
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrTransport, KindTransport},
	{ErrRateLimited, KindRateLimited},
	{ErrPermanent, KindPermanent},
	{ErrDeadlineExceeded, KindDeadlineExceeded},
	{ErrValidation, KindValidation},
	{ErrReasonerUnavailable, KindReasonerUnavailable},
	{ErrRiskBlocked, KindRiskBlocked},
	{ErrCircuitBreakerTripped, KindCircuitBreakerTripped},
}

// ClassifyOf returns the Kind an error was wrapped with, or KindUnknown if
// it matches none of the sentinels.
func ClassifyOf(err error) Kind {
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return sk.kind
		}
	}
	return KindUnknown
}

// Terminal reports whether an error kind should abort the process rather
// than be caught at the cycle boundary — only ValidationError per §7.
func Terminal(err error) bool {
	return errors.Is(err, ErrValidation)
}
