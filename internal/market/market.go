// Package market
package market

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts exactly "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side: %q", s)
}

// Level is one price point of a book with the aggregate quantity resting there.
type Level struct {
	Quantity float64 `json:"quantity"`
	Rate     float64 `json:"rate"`
}

// OrderBook is a snapshot of one side of a market, in walk order:
// ascending rate (asks) for Buy, descending rate (bids) for Sell.
type OrderBook struct {
	Market    string
	Side      Side
	Levels    []Level
	Timestamp time.Time
}

// Depth returns the total quantity resting in the snapshot.
func (ob OrderBook) Depth() float64 {
	var total float64
	for _, l := range ob.Levels {
		total += l.Quantity
	}
	return total
}

// Balance represents an asset balance from an exchange
type Balance struct {
	Currency  string  `json:"currency"`  // Asset symbol (e.g., "BTC", "USDT")
	Available float64 `json:"available"` // Available balance for trading
	Locked    float64 `json:"locked"`    // Balance locked in orders
	Total     float64 `json:"total"`     // Total balance (available + locked)
}

// FormatMarket builds the canonical BASE-COUNTER market name.
func FormatMarket(base, counter string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + "-" + strings.ToUpper(strings.TrimSpace(counter))
}

// SplitMarket is the inverse of FormatMarket.
func SplitMarket(m string) (base, counter string, err error) {
	parts := strings.Split(m, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed market: %q", m)
	}
	return parts[0], parts[1], nil
}
