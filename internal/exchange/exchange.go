// Package exchange
package exchange

import (
	"context"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
)

// Exchange is the interface for all supported exchanges.
//
// Implementations are not required to be safe for concurrent use; the tracker
// serializes every call made by this process.
type Exchange interface {
	Name() string
	// FetchOrderBook returns the side of the book a trade on side consumes,
	// asks ascending for market.Buy and bids descending for market.Sell.
	FetchOrderBook(ctx context.Context, symbol string, side market.Side) (market.OrderBook, error)
	FetchBalance(ctx context.Context, currency string) (market.Balance, error)
	SubmitOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (order.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
	IsValidMarket(ctx context.Context, base, counter string) (bool, error)
	IsValidCurrency(ctx context.Context, currency string) (bool, error)
}
