// Package exchange
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaperExchange acts as a proxy for market data and provides simulated order handling.
// Submitted orders stay NEW until their first status poll, which reports them FILLED at the
// submitted rate.
type PaperExchange struct {
	realExchange      Exchange // books, balances and validation are proxied here
	commissionPercent float64
	log               *zap.SugaredLogger
	now               func() time.Time

	mu     sync.Mutex
	orders map[string]*order.OrderResponse
}

func NewPaperExchange(inner Exchange, commissionPercent float64, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		realExchange:      inner,
		commissionPercent: commissionPercent,
		log:               logger.Sugar().Named("paper"),
		now:               func() time.Time { return time.Now().UTC() },
		orders:            make(map[string]*order.OrderResponse),
	}
}

func (p *PaperExchange) Name() string {
	return "paper-" + p.realExchange.Name()
}

// ===== PROXY FUNCTIONS =====

func (p *PaperExchange) FetchOrderBook(ctx context.Context, symbol string, side market.Side) (market.OrderBook, error) {
	return p.realExchange.FetchOrderBook(ctx, symbol, side)
}

func (p *PaperExchange) FetchBalance(ctx context.Context, currency string) (market.Balance, error) {
	return p.realExchange.FetchBalance(ctx, currency)
}

func (p *PaperExchange) IsValidMarket(ctx context.Context, base, counter string) (bool, error) {
	return p.realExchange.IsValidMarket(ctx, base, counter)
}

func (p *PaperExchange) IsValidCurrency(ctx context.Context, currency string) (bool, error) {
	return p.realExchange.IsValidCurrency(ctx, currency)
}

// ===== SIMULATED FUNCTIONS =====

func (p *PaperExchange) SubmitOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}
	if req.Type != order.TypeLimit {
		return order.OrderResponse{}, fmt.Errorf("paper exchange: order type '%s' not supported, only 'limit' orders are", req.Type)
	}
	if req.Price <= 0 || req.Quantity <= 0 {
		return order.OrderResponse{}, fmt.Errorf("paper exchange: non-positive price or quantity")
	}

	now := p.now()
	o := &order.OrderResponse{
		OrderID:   uuid.NewString(),
		Market:    req.Market,
		Side:      req.Side,
		Type:      req.Type,
		Status:    order.StatusNew,
		IsOpen:    true,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Timestamp: now,
		UpdatedAt: now,
	}

	p.mu.Lock()
	p.orders[o.OrderID] = o
	p.mu.Unlock()

	p.log.Infow("paper order accepted",
		"order_id", o.OrderID, "market", req.Market, "side", req.Side, "price", req.Price, "quantity", req.Quantity)

	return *o, nil
}

func (p *PaperExchange) GetOrderStatus(ctx context.Context, orderID string) (order.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return order.OrderResponse{}, fmt.Errorf("paper exchange: order %s not found", orderID)
	}

	if o.IsOpen {
		o.Status = order.StatusFilled
		o.IsOpen = false
		o.FilledQty = o.Quantity
		o.Commission = commission(o.FilledQty, o.Price, p.commissionPercent)
		o.UpdatedAt = p.now()
	}
	return *o, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper exchange: order %s not found", orderID)
	}
	if !o.IsOpen {
		return fmt.Errorf("paper exchange: order %s already %s", orderID, o.Status)
	}

	o.Status = order.StatusCanceled
	o.IsOpen = false
	o.UpdatedAt = p.now()
	return nil
}
