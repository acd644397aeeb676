// Package exchange implements the Exchange Port (C2): the abstract
// boundary the trading core uses to list markets, read order books,
// submit/cancel orders, and read the portfolio. Two adapters satisfy Port:
// Client, a live REST/EIP-712/HMAC-authenticated CLOB client, and
// Simulator, a deterministic paper-trading fill engine used when
// config.Mode == "paper".
package exchange

import (
	"context"
	"fmt"

	"polymarket-mm/internal/errs"
	"polymarket-mm/internal/types"
)

// Port is the capability set of §4.2: list_open_markets, get_order_book,
// get_portfolio, submit_order, cancel_order. Implementations must convert
// transport-specific failures into the errs taxonomy at this boundary —
// nothing above Port inspects HTTP status codes or raw error strings.
type Port interface {
	// ListOpenMarkets returns up to limit markets. Ordered by volume
	// descending is recommended, not required.
	ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error)

	// GetOrderBook returns the book for ticker, or ok=false if the ticker
	// is unknown or the market is closed.
	GetOrderBook(ctx context.Context, ticker string) (book types.OrderBook, ok bool, err error)

	// GetPortfolio returns the current account snapshot.
	GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error)

	// SubmitOrder places one order. Implementers must guarantee
	// at-most-once submission semantics per call; callers never retry a
	// submission automatically.
	SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)

	// CancelOrder cancels a previously-submitted order by ID.
	CancelOrder(ctx context.Context, orderID string) error
}

// wrapTransport classifies a low-level error as errs.ErrTransport unless it
// is already one of the recognized kinds.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.ClassifyOf(err) != errs.KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, errs.ErrTransport, err)
}
