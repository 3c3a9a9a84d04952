package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{in: "buy", want: Buy},
		{in: "sell", want: Sell},
		{in: "SELL", wantErr: true},
		{in: " buy", wantErr: true},
		{in: "hold", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAndSplitMarket(t *testing.T) {
	m := FormatMarket("eth", " usdt")
	assert.Equal(t, "ETH-USDT", m)

	base, counter, err := SplitMarket(m)
	require.NoError(t, err)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDT", counter)

	_, _, err = SplitMarket("ETHUSDT")
	assert.Error(t, err)
	_, _, err = SplitMarket("-USDT")
	assert.Error(t, err)
}

func TestOrderBookDepth(t *testing.T) {
	ob := OrderBook{Levels: []Level{{Quantity: 1, Rate: 100}, {Quantity: 2.5, Rate: 101}}}
	assert.InDelta(t, 3.5, ob.Depth(), 1e-12)
	assert.Zero(t, OrderBook{}.Depth())
}
