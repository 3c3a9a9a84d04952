// Package executor implements the trade operations served over HTTP. Every operation that
// talks to the exchange runs inside one tracker critical section.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/simple-executor/internal/exchange"
	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/metrics"
	"github.com/amirphl/simple-executor/internal/notifier"
	"github.com/amirphl/simple-executor/internal/order"
	"github.com/amirphl/simple-executor/internal/pricing"
	"github.com/amirphl/simple-executor/internal/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity     = pricing.ErrInvalidQuantity
	ErrInvalidSide         = pricing.ErrInvalidSide
	ErrInvalidMarket       = errors.New("invalid market")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOrderID      = errors.New("invalid order id")
	ErrMissingOrderID      = errors.New("exchange returned no order id")
)

// IsValidation reports whether err is the caller's fault rather than the venue's.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidQuantity,
		ErrInvalidSide,
		ErrInvalidMarket,
		ErrInvalidCurrency,
		ErrInsufficientBalance,
		ErrInvalidOrderID,
		pricing.ErrInsufficientDepth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type Quote struct {
	Market   string  `json:"market"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Full     bool    `json:"full"`
}

type TradeRequest struct {
	Base    string
	Counter string
	Side    market.Side
	Amount  float64
}

type Config struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Notifier notifier.Notifier
}

type Executor struct {
	tracker  *tracker.Tracker
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	notifier notifier.Notifier
}

func New(t *tracker.Tracker, cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.Nop{}
	}
	return &Executor{
		tracker:  t,
		log:      cfg.Logger.Sugar().Named("executor"),
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
	}
}

// FillPrice estimates the average price of buying quantity base with counter.
func (e *Executor) FillPrice(ctx context.Context, base, counter string, quantity float64) (Quote, error) {
	if quantity <= 0 {
		return Quote{}, ErrInvalidQuantity
	}

	symbol := market.FormatMarket(base, counter)
	q := Quote{Market: symbol, Quantity: quantity}
	err := e.tracker.Do(func(s *tracker.Session) error {
		ob, err := book(ctx, s.Exchange(), base, counter, market.Buy)
		if err != nil {
			return err
		}
		q.Price, q.Full = pricing.AverageFillPrice(ob.Levels, quantity)
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

// LimitRate is the marketable limit rate for trading quantity base on side.
func (e *Executor) LimitRate(ctx context.Context, base, counter string, side market.Side, quantity float64) (float64, error) {
	if err := validateTrade(side, quantity); err != nil {
		return 0, err
	}

	var rate float64
	err := e.tracker.Do(func(s *tracker.Session) error {
		ob, err := book(ctx, s.Exchange(), base, counter, side)
		if err != nil {
			return err
		}
		rate, err = pricing.LimitRate(ob.Levels, quantity, side)
		return err
	})
	return rate, err
}

func (e *Executor) Balance(ctx context.Context, currency string) (market.Balance, error) {
	var bal market.Balance
	err := e.tracker.Do(func(s *tracker.Session) error {
		ex := s.Exchange()
		ok, err := ex.IsValidCurrency(ctx, currency)
		if err != nil {
			return fmt.Errorf("validate currency: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidCurrency, currency)
		}
		bal, err = ex.FetchBalance(ctx, currency)
		if err != nil {
			return fmt.Errorf("fetch balance: %w", err)
		}
		return nil
	})
	return bal, err
}

// SendOrder prices a limit order off the current book, checks funds, submits it and starts
// tracking it, all without releasing the lock. A failed submission is not retried.
func (e *Executor) SendOrder(ctx context.Context, req TradeRequest) (order.OrderResponse, error) {
	if err := validateTrade(req.Side, req.Amount); err != nil {
		return order.OrderResponse{}, err
	}

	symbol := market.FormatMarket(req.Base, req.Counter)
	var resp order.OrderResponse
	err := e.tracker.Do(func(s *tracker.Session) error {
		ex := s.Exchange()
		ob, err := book(ctx, ex, req.Base, req.Counter, req.Side)
		if err != nil {
			return err
		}

		rate, err := pricing.LimitRate(ob.Levels, req.Amount, req.Side)
		if err != nil {
			return err
		}

		// buying spends counter, selling spends base
		currency, need := req.Counter, req.Amount*rate
		if req.Side == market.Sell {
			currency, need = req.Base, req.Amount
		}
		bal, err := ex.FetchBalance(ctx, currency)
		if err != nil {
			return fmt.Errorf("fetch balance: %w", err)
		}
		if bal.Available < need {
			return fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, need, bal.Currency, bal.Available)
		}

		resp, err = ex.SubmitOrder(ctx, order.OrderRequest{
			Market:   symbol,
			Side:     req.Side,
			Type:     order.TypeLimit,
			Price:    rate,
			Quantity: req.Amount,
		})
		if err != nil {
			return fmt.Errorf("submit order: %w", err)
		}
		if resp.OrderID == "" {
			return fmt.Errorf("submit order: %w", ErrMissingOrderID)
		}
		if resp.Price == 0 {
			resp.Price = rate
		}

		s.Track(resp.OrderID)
		return nil
	})
	if err != nil {
		if !IsValidation(err) {
			e.metrics.SubmitFailures.Inc()
			e.log.Errorw("order submission failed", "market", symbol, "side", req.Side, "amount", req.Amount, "err", err)
			msg := fmt.Sprintf("Order submission failed: %s %.8f %s: %v", req.Side, req.Amount, symbol, err)
			if nerr := e.notifier.Send(ctx, msg); nerr != nil {
				e.log.Warnw("notification failed", "err", nerr)
			}
		}
		return order.OrderResponse{}, err
	}

	e.metrics.OrdersSubmitted.WithLabelValues(string(req.Side)).Inc()
	e.log.Infow("order submitted",
		"order_id", resp.OrderID, "market", symbol, "side", req.Side, "amount", req.Amount, "rate", resp.Price)
	return resp, nil
}

// CancelOrder asks the venue to cancel orderID. The tracker records the order once the
// venue reports it closed.
func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return ErrInvalidOrderID
	}
	err := e.tracker.Do(func(s *tracker.Session) error {
		if err := s.Exchange().CancelOrder(ctx, orderID); err != nil {
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		return nil
	})
	if err == nil {
		e.log.Infow("order cancellation requested", "order_id", orderID)
	}
	return err
}

func (e *Executor) PendingOrders() []string {
	return e.tracker.Pending()
}

func validateTrade(side market.Side, quantity float64) error {
	if side != market.Buy && side != market.Sell {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// book validates the market and fetches the side of the book a trade on side would consume.
func book(ctx context.Context, ex exchange.Exchange, base, counter string, side market.Side) (market.OrderBook, error) {
	ok, err := ex.IsValidMarket(ctx, base, counter)
	if err != nil {
		return market.OrderBook{}, fmt.Errorf("validate market: %w", err)
	}
	symbol := market.FormatMarket(base, counter)
	if !ok {
		return market.OrderBook{}, fmt.Errorf("%w: %s", ErrInvalidMarket, symbol)
	}

	ob, err := ex.FetchOrderBook(ctx, symbol, side)
	if err != nil {
		return market.OrderBook{}, fmt.Errorf("fetch order book %s: %w", symbol, err)
	}
	return ob, nil
}
