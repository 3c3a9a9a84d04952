// Package pricing walks order-book snapshots to estimate fills and marketable limit rates.
//
// Levels are consumed in the order given; callers hand in asks ascending for a buy and
// bids descending for a sell. Nothing here re-sorts or mutates the input.
package pricing

import (
	"errors"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/shopspring/decimal"
)

const (
	BuyBias       = 1.005
	SellBias      = 0.995
	RatePrecision = 8
)

var (
	ErrInsufficientDepth = errors.New("insufficient book depth")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidSide       = errors.New("invalid side")
)

// AverageFillPrice returns the volume-weighted price a market order of quantity would get.
// full is false when the book runs out first; price is then the average of what was consumed.
// Quantities are summed in decimal so a level that exactly completes the order is recognized.
func AverageFillPrice(levels []market.Level, quantity float64) (price float64, full bool) {
	if quantity <= 0 {
		return 0, false
	}

	want := decimal.NewFromFloat(quantity)
	var cost, filled decimal.Decimal
	for _, l := range levels {
		take := decimal.Min(want.Sub(filled), decimal.NewFromFloat(l.Quantity))
		if !take.IsPositive() {
			continue
		}
		cost = cost.Add(take.Mul(decimal.NewFromFloat(l.Rate)))
		filled = filled.Add(take)
		if filled.GreaterThanOrEqual(want) {
			return cost.Div(filled).InexactFloat64(), true
		}
	}

	if filled.IsZero() {
		return 0, false
	}
	return cost.Div(filled).InexactFloat64(), false
}

// LimitRate returns the rate of the depth-clearing level biased past it by side,
// rounded to RatePrecision decimals.
func LimitRate(levels []market.Level, quantity float64, side market.Side) (float64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	var bias float64
	switch side {
	case market.Buy:
		bias = BuyBias
	case market.Sell:
		bias = SellBias
	default:
		return 0, ErrInvalidSide
	}

	want := decimal.NewFromFloat(quantity)
	var cumulative decimal.Decimal
	for _, l := range levels {
		cumulative = cumulative.Add(decimal.NewFromFloat(l.Quantity))
		if cumulative.GreaterThanOrEqual(want) {
			return Round(l.Rate*bias, RatePrecision), nil
		}
	}

	return 0, ErrInsufficientDepth
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
