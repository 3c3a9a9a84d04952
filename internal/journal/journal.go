// Package journal
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
	"github.com/shopspring/decimal"
)

// Record is the final economics of one closed order.
type Record struct {
	OrderID   string    `json:"order-id"`
	Market    string    `json:"market"`
	Side      string    `json:"side"`
	Status    string    `json:"status"` // "filled" or "cancelled"
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	TotalCost float64   `json:"total-cost"`
	Fees      float64   `json:"fees"`
	Exchange  string    `json:"exchange"`
	Time      time.Time `json:"timestamp"`
}

// Journaler appends records to durable storage. Records are never rewritten.
type Journaler interface {
	Append(ctx context.Context, r Record) error
}

// NewRecord derives the record of a closed order. TotalCost is what a buy paid
// including fees, or what a sell received net of fees.
func NewRecord(resp order.OrderResponse, exchange string) Record {
	amount := decimal.NewFromFloat(resp.FilledQty)
	fees := decimal.NewFromFloat(resp.Commission)
	notional := amount.Mul(decimal.NewFromFloat(resp.Price))

	total := notional.Add(fees)
	if resp.Side == market.Sell {
		total = notional.Sub(fees)
	}

	ts := resp.UpdatedAt
	if ts.IsZero() {
		ts = resp.Timestamp
	}

	return Record{
		OrderID:   resp.OrderID,
		Market:    resp.Market,
		Side:      string(resp.Side),
		Status:    resp.Outcome(),
		Amount:    resp.FilledQty,
		Price:     resp.Price,
		TotalCost: total.Round(8).InexactFloat64(),
		Fees:      resp.Commission,
		Exchange:  exchange,
		Time:      ts.UTC(),
	}
}

// Multi fans a record out to every journaler; all are attempted. A journaler that
// accepted a record is skipped when the same order is appended again after a partial
// failure, so each sink sees every order once.
type Multi struct {
	sinks []Journaler

	mu       sync.Mutex
	accepted map[string]map[int]bool
}

func NewMulti(sinks ...Journaler) *Multi {
	return &Multi{sinks: sinks, accepted: make(map[string]map[int]bool)}
}

// Add appends j to the fan-out.
func (m *Multi) Add(j Journaler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, j)
}

func (m *Multi) Append(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	done := m.accepted[r.OrderID]
	var errs []error
	for i, j := range m.sinks {
		if done[i] {
			continue
		}
		if err := j.Append(ctx, r); err != nil {
			errs = append(errs, err)
			continue
		}
		if done == nil {
			done = make(map[int]bool)
		}
		done[i] = true
	}

	if len(errs) == 0 {
		delete(m.accepted, r.OrderID)
		return nil
	}
	if done != nil {
		m.accepted[r.OrderID] = done
	}
	return errors.Join(errs...)
}
