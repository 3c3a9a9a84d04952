// Package order
package order

import (
	"time"

	"github.com/amirphl/simple-executor/internal/market"
)

const TypeLimit = "limit"

// Venue order statuses.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
	StatusRejected        = "REJECTED"
)

// Outcomes recorded for closed orders.
const (
	OutcomeFilled    = "filled"
	OutcomeCancelled = "cancelled"
)

// OrderRequest represents a new order to be submitted.
type OrderRequest struct {
	Market   string
	Side     market.Side
	Type     string
	Price    float64
	Quantity float64
}

// OrderResponse represents the response from the exchange.
type OrderResponse struct {
	OrderID    string
	Market     string
	Side       market.Side
	Type       string
	Status     string
	IsOpen     bool
	Price      float64 // average executed price
	Quantity   float64
	FilledQty  float64
	Commission float64
	Timestamp  time.Time
	UpdatedAt  time.Time
}

// IsTerminal reports whether the venue will not change the order anymore.
func IsTerminal(status string) bool {
	switch status {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Outcome tells a fully filled order apart from one closed for any other reason.
// A cancelled order may still carry a partial fill.
func (o OrderResponse) Outcome() string {
	if o.Status == StatusFilled {
		return OutcomeFilled
	}
	return OutcomeCancelled
}
