package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/types"
)

// HTTPReasoner forwards the ReasoningContext as JSON to an external
// reasoning service and decodes its Decision response. Built the same way
// the live exchange adapter is: a single resty client with a fixed base
// URL and retry-on-5xx, since both talk to an external HTTP boundary.
type HTTPReasoner struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewHTTPReasoner builds an HTTPReasoner pointed at url. deadline is the
// timeout of each HTTP attempt; with one retry allowed, a Decide call can
// run for about twice deadline unless the caller's ctx ends it sooner.
func NewHTTPReasoner(url string, deadline time.Duration, logger *slog.Logger) *HTTPReasoner {
	httpClient := resty.New().
		SetBaseURL(url).
		SetTimeout(deadline).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPReasoner{http: httpClient, logger: logger.With("component", "reasoning_http")}
}

// Decide POSTs the context to "/decide" and parses the Decision response.
func (h *HTTPReasoner) Decide(ctx context.Context, rc types.ReasoningContext) (types.Decision, error) {
	var decision types.Decision
	resp, err := h.http.R().
		SetContext(ctx).
		SetBody(rc).
		SetResult(&decision).
		Post("/decide")
	if err != nil {
		return types.Decision{}, fmt.Errorf("decide: %w: %v", errs.ErrReasonerUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Decision{}, fmt.Errorf("decide: %w: status %d: %s", errs.ErrReasonerUnavailable, resp.StatusCode(), resp.String())
	}
	if decision.Kind == "" {
		decision.Kind = types.DecisionHold
	}
	return decision, nil
}
