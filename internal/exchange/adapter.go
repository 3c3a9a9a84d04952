// Package exchange adapter
package exchange

import (
	"sort"
	"strconv"
	"strings"

	"github.com/amirphl/simple-executor/internal/market"
	wallex "github.com/wallexchange/wallex-go"
)

// NormalizeSymbol turns "ETH-USDT" into the venue's "ETHUSDT".
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// DenormalizeSymbol turns a venue symbol back into BASE-COUNTER.
func DenormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(s, "USDT"):
		return strings.TrimSuffix(s, "USDT") + "-USDT"
	case strings.HasSuffix(s, "TMN"):
		return strings.TrimSuffix(s, "TMN") + "-TMN"
	case len(s) > 3:
		// replace last three characters with hyphen
		return s[:len(s)-3] + "-" + s[len(s)-3:]
	}
	return s
}

// parseLevels skips entries whose numbers do not parse or are not positive.
func parseLevels(entries []*wallex.MarketOrder) []market.Level {
	levels := make([]market.Level, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		rate := numberPtr(&e.Price)
		qty := numberPtr(&e.Quantity)
		if rate <= 0 || qty <= 0 {
			continue
		}
		levels = append(levels, market.Level{Quantity: qty, Rate: rate})
	}
	return levels
}

// walkOrder sorts asks ascending and bids descending by rate, keeping venue order among equal rates.
func walkOrder(levels []market.Level, ascending bool) []market.Level {
	sort.SliceStable(levels, func(i, j int) bool {
		if ascending {
			return levels[i].Rate < levels[j].Rate
		}
		return levels[i].Rate > levels[j].Rate
	})
	return levels
}

func parseBalances(in map[string]*wallex.Balance) map[string]market.Balance {
	out := make(map[string]market.Balance, len(in))
	for asset, wb := range in {
		if wb == nil {
			continue
		}
		available := numberPtr(&wb.Value)
		locked := numberPtr(&wb.Locked)
		currency := strings.ToUpper(asset)
		out[currency] = market.Balance{
			Currency:  currency,
			Available: available,
			Locked:    locked,
			Total:     available + locked,
		}
	}
	return out
}

func commission(filledQty, price, percent float64) float64 {
	return filledQty * price * percent / 100
}

// Helper to safely dereference *wallex.Number
func numberPtr(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	out, _ := strconv.ParseFloat(string(*n), 64)
	return out
}
