package pricing

import (
	"math"
	"strconv"
	"testing"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoLevelBook = []market.Level{
	{Quantity: 1, Rate: 100},
	{Quantity: 2, Rate: 101},
}

func TestAverageFillPrice(t *testing.T) {
	tests := []struct {
		name     string
		levels   []market.Level
		quantity float64
		expected float64
		full     bool
	}{
		{
			name:     "spans two levels",
			levels:   twoLevelBook,
			quantity: 2,
			expected: 100.5,
			full:     true,
		},
		{
			name:     "inside first level",
			levels:   twoLevelBook,
			quantity: 0.5,
			expected: 100,
			full:     true,
		},
		{
			name:     "consumes whole book exactly",
			levels:   twoLevelBook,
			quantity: 3,
			expected: (100 + 2*101) / 3.0,
			full:     true,
		},
		{
			name:     "insufficient depth returns partial average",
			levels:   twoLevelBook,
			quantity: 10,
			expected: (100 + 2*101) / 3.0,
			full:     false,
		},
		{
			name:     "zero quantity",
			levels:   twoLevelBook,
			quantity: 0,
			expected: 0,
		},
		{
			name:     "negative quantity",
			levels:   twoLevelBook,
			quantity: -1,
			expected: 0,
		},
		{
			name:     "empty book",
			levels:   nil,
			quantity: 1,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, full := AverageFillPrice(tt.levels, tt.quantity)
			assert.InDelta(t, tt.expected, price, 1e-9)
			assert.Equal(t, tt.full, full)
		})
	}
}

func TestAverageFillPrice_ExactLevelQuantity(t *testing.T) {
	levels := []market.Level{{Quantity: 2, Rate: 101.37}}
	price, full := AverageFillPrice(levels, 2)
	assert.Equal(t, 101.37, price)
	assert.True(t, full)

	// walking past an earlier level still lands exactly on the single-level case
	price, _ = AverageFillPrice([]market.Level{{Quantity: 0.5, Rate: 42.42}, {Quantity: 5, Rate: 50}}, 0.5)
	assert.Equal(t, 42.42, price)
}

func TestAverageFillPrice_DecimalDepth(t *testing.T) {
	levels := []market.Level{{Quantity: 0.7, Rate: 100}, {Quantity: 0.1, Rate: 101}, {Quantity: 0.2, Rate: 102}}
	price, full := AverageFillPrice(levels, 0.8)
	assert.True(t, full)
	assert.InDelta(t, 100.125, price, 1e-9, "third level untouched")
}

func TestAverageFillPrice_WithinConsumedRange(t *testing.T) {
	levels := []market.Level{
		{Quantity: 0.3, Rate: 99.5},
		{Quantity: 1.1, Rate: 99.9},
		{Quantity: 0.7, Rate: 100.2},
		{Quantity: 4, Rate: 103},
	}

	for _, q := range []float64{0.1, 0.3, 0.9, 1.4, 2.0, 2.1, 5.5, 6.1} {
		t.Run(strconv.FormatFloat(q, 'f', -1, 64), func(t *testing.T) {
			price, full := AverageFillPrice(levels, q)
			require.True(t, full)

			lo, hi := math.Inf(1), math.Inf(-1)
			var cum float64
			for _, l := range levels {
				lo = math.Min(lo, l.Rate)
				hi = math.Max(hi, l.Rate)
				cum += l.Quantity
				if cum >= q {
					break
				}
			}
			assert.GreaterOrEqual(t, price, lo-1e-9)
			assert.LessOrEqual(t, price, hi+1e-9)
		})
	}
}

func TestAverageFillPrice_EqualRateOrderIrrelevant(t *testing.T) {
	a := []market.Level{
		{Quantity: 1, Rate: 10},
		{Quantity: 2, Rate: 11},
		{Quantity: 0.5, Rate: 11},
		{Quantity: 3, Rate: 12},
	}
	b := []market.Level{
		{Quantity: 1, Rate: 10},
		{Quantity: 0.5, Rate: 11},
		{Quantity: 2, Rate: 11},
		{Quantity: 3, Rate: 12},
	}

	for _, q := range []float64{1.2, 2, 3.5, 4} {
		pa, _ := AverageFillPrice(a, q)
		pb, _ := AverageFillPrice(b, q)
		assert.InDelta(t, pa, pb, 1e-9, "quantity %v", q)
	}
}

func TestAverageFillPrice_DoesNotMutateLevels(t *testing.T) {
	levels := []market.Level{{Quantity: 1, Rate: 100}, {Quantity: 2, Rate: 101}}
	snapshot := append([]market.Level(nil), levels...)
	AverageFillPrice(levels, 2.5)
	_, _ = LimitRate(levels, 2.5, market.Buy)
	assert.Equal(t, snapshot, levels)
}

func TestLimitRate(t *testing.T) {
	tests := []struct {
		name     string
		levels   []market.Level
		quantity float64
		side     market.Side
		expected float64
		err      error
	}{
		{
			name:     "buy clears at second level",
			levels:   twoLevelBook,
			quantity: 2,
			side:     market.Buy,
			expected: 101.505,
		},
		{
			name:     "buy clears at first level when depth is met exactly",
			levels:   twoLevelBook,
			quantity: 1,
			side:     market.Buy,
			expected: 100.5,
		},
		{
			name:     "buy clears where decimal depth meets quantity",
			levels:   []market.Level{{Quantity: 0.7, Rate: 100}, {Quantity: 0.1, Rate: 101}, {Quantity: 0.2, Rate: 102}},
			quantity: 0.8,
			side:     market.Buy,
			expected: 101.505,
		},
		{
			name:     "sell walks descending bids",
			levels:   []market.Level{{Quantity: 1, Rate: 101}, {Quantity: 2, Rate: 100}},
			quantity: 2,
			side:     market.Sell,
			expected: 99.5,
		},
		{
			name:     "sell with insufficient depth",
			levels:   []market.Level{{Quantity: 0.2, Rate: 101}, {Quantity: 0.3, Rate: 100}},
			quantity: 2,
			side:     market.Sell,
			err:      ErrInsufficientDepth,
		},
		{
			name:     "empty book",
			quantity: 1,
			side:     market.Buy,
			err:      ErrInsufficientDepth,
		},
		{
			name:     "zero quantity",
			levels:   twoLevelBook,
			quantity: 0,
			side:     market.Buy,
			err:      ErrInvalidQuantity,
		},
		{
			name:     "unknown side",
			levels:   twoLevelBook,
			quantity: 1,
			side:     market.Side("hold"),
			err:      ErrInvalidSide,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := LimitRate(tt.levels, tt.quantity, tt.side)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Zero(t, rate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rate)
		})
	}
}

func TestLimitRate_BiasDirection(t *testing.T) {
	levels := []market.Level{
		{Quantity: 0.013, Rate: 0.00012345},
		{Quantity: 7.1, Rate: 1234.56789},
		{Quantity: 20, Rate: 98765.4321},
	}

	for _, q := range []float64{0.01, 0.5, 7.113, 27} {
		var (
			cum      decimal.Decimal
			clearing float64
		)
		for _, l := range levels {
			cum = cum.Add(decimal.NewFromFloat(l.Quantity))
			if cum.GreaterThanOrEqual(decimal.NewFromFloat(q)) {
				clearing = l.Rate
				break
			}
		}

		buy, err := LimitRate(levels, q, market.Buy)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, buy, clearing)

		sell, err := LimitRate(levels, q, market.Sell)
		require.NoError(t, err)
		assert.LessOrEqual(t, sell, clearing)
	}
}

func TestLimitRate_EightDecimals(t *testing.T) {
	levels := []market.Level{{Quantity: 5, Rate: 0.123456789123}}

	for _, side := range []market.Side{market.Buy, market.Sell} {
		rate, err := LimitRate(levels, 1, side)
		require.NoError(t, err)

		s := strconv.FormatFloat(rate, 'f', -1, 64)
		if dot := indexDot(s); dot >= 0 {
			assert.LessOrEqual(t, len(s)-dot-1, RatePrecision, "rate %s", s)
		}
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 101.505, Round(101*1.005, 8))
	assert.Equal(t, 0.12345679, Round(0.123456789, 8))
	assert.Equal(t, 1.0, Round(0.999999999, 8))

	// ties at the 9th decimal of the shortest representation round away from zero
	assert.Equal(t, 0.12345679, Round(0.123456785, 8))
	assert.Equal(t, -0.12345679, Round(-0.123456785, 8))
}

func indexDot(s string) int {
	for i := range s {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
