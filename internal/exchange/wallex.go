// Package exchange
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
	wallex "github.com/wallexchange/wallex-go"
	"go.uber.org/zap"
)

type WallexExchange struct {
	client            *wallex.Client
	commissionPercent float64
	log               *zap.SugaredLogger
}

// NewWallexExchange builds a live exchange. commissionPercent is applied to the executed
// notional of every order since the venue does not report fees per order.
func NewWallexExchange(apiKey string, commissionPercent float64, logger *zap.Logger) Exchange {
	return &WallexExchange{
		client:            wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		commissionPercent: commissionPercent,
		log:               logger.Sugar().Named("wallex"),
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

// retry wraps a read-only call with exponential backoff. Submissions never go through it.
func (w *WallexExchange) retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		w.log.Warnw("retry attempt failed", "attempt", i, "attempts", attempts, "err", err, "backoff", backoff)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		// Exponential backoff, but cap at 30 seconds
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return errors.Join(errors.New("all retry attempts failed"), err)
}

func (w *WallexExchange) FetchOrderBook(ctx context.Context, symbol string, side market.Side) (market.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return market.OrderBook{}, err
	}

	var asks, bids []*wallex.MarketOrder
	err := w.retry(ctx, 3, time.Second, func() error {
		var err error
		asks, bids, err = w.client.MarketOrders(NormalizeSymbol(symbol))
		if err != nil {
			return fmt.Errorf("fetching orderbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return market.OrderBook{}, fmt.Errorf("FetchOrderBook %s: %w", symbol, err)
	}

	var levels []market.Level
	switch side {
	case market.Buy:
		levels = walkOrder(parseLevels(asks), true)
	case market.Sell:
		levels = walkOrder(parseLevels(bids), false)
	default:
		return market.OrderBook{}, fmt.Errorf("FetchOrderBook: unknown side %q", side)
	}

	return market.OrderBook{
		Market:    symbol,
		Side:      side,
		Levels:    levels,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (w *WallexExchange) FetchBalance(ctx context.Context, currency string) (market.Balance, error) {
	balances, err := w.fetchBalances(ctx)
	if err != nil {
		return market.Balance{}, err
	}

	b, ok := balances[strings.ToUpper(currency)]
	if !ok {
		return market.Balance{Currency: strings.ToUpper(currency)}, nil
	}
	return b, nil
}

func (w *WallexExchange) fetchBalances(ctx context.Context) (map[string]market.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var wallexBalances map[string]*wallex.Balance
	err := w.retry(ctx, 3, time.Second, func() error {
		var err error
		wallexBalances, err = w.client.Balances()
		if err != nil {
			return fmt.Errorf("fetching balances: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("FetchBalances: %w", err)
	}

	return parseBalances(wallexBalances), nil
}

func (w *WallexExchange) SubmitOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}

	params := &wallex.OrderParams{
		Symbol:   NormalizeSymbol(req.Market),
		Type:     strings.ToUpper(req.Type),
		Side:     strings.ToUpper(string(req.Side)),
		Price:    wallex.Number(strconv.FormatFloat(req.Price, 'f', 8, 64)),
		Quantity: wallex.Number(strconv.FormatFloat(req.Quantity, 'f', 8, 64)),
	}
	resp, err := w.client.PlaceOrder(params)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("SubmitOrder %s %s: %w", req.Side, req.Market, err)
	}

	status := strings.ToUpper(resp.Status)
	filled := numberPtr(resp.ExecutedQty)
	price := numberPtr(resp.ExecutedPrice)
	return order.OrderResponse{
		OrderID:    resp.ClientOrderID,
		Market:     req.Market,
		Side:       req.Side,
		Type:       req.Type,
		Status:     status,
		IsOpen:     !order.IsTerminal(status),
		Price:      price,
		Quantity:   req.Quantity,
		FilledQty:  filled,
		Commission: commission(filled, price, w.commissionPercent),
		Timestamp:  resp.CreatedAt.UTC(),
		UpdatedAt:  resp.CreatedAt.UTC(),
	}, nil
}

func (w *WallexExchange) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.client.CancelOrder(orderID)
}

func (w *WallexExchange) GetOrderStatus(ctx context.Context, orderID string) (order.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}

	resp, err := w.client.Order(orderID)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("GetOrderStatus %s: %w", orderID, err)
	}

	status := strings.ToUpper(resp.Status)
	filled := numberPtr(resp.ExecutedQty)
	price := numberPtr(resp.ExecutedPrice)
	return order.OrderResponse{
		OrderID:    resp.ClientOrderID,
		Market:     DenormalizeSymbol(resp.Symbol),
		Side:       market.Side(strings.ToLower(resp.Side)),
		Type:       strings.ToLower(resp.Type),
		Status:     status,
		IsOpen:     !order.IsTerminal(status),
		Price:      price,
		Quantity:   numberPtr(&resp.OrigQty),
		FilledQty:  filled,
		Commission: commission(filled, price, w.commissionPercent),
		Timestamp:  resp.CreatedAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func (w *WallexExchange) IsValidMarket(ctx context.Context, base, counter string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var markets []*wallex.Market
	err := w.retry(ctx, 3, time.Second, func() error {
		var err error
		markets, err = w.client.Markets()
		if err != nil {
			return fmt.Errorf("fetching markets: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("IsValidMarket: %w", err)
	}

	want := NormalizeSymbol(market.FormatMarket(base, counter))
	for _, m := range markets {
		if strings.EqualFold(m.Symbol, want) {
			return true, nil
		}
	}
	return false, nil
}

// IsValidCurrency treats every asset the wallet lists as tradable.
func (w *WallexExchange) IsValidCurrency(ctx context.Context, currency string) (bool, error) {
	balances, err := w.fetchBalances(ctx)
	if err != nil {
		return false, fmt.Errorf("IsValidCurrency: %w", err)
	}
	_, ok := balances[strings.ToUpper(currency)]
	return ok, nil
}
