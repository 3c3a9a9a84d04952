package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusNew, false},
		{StatusPartiallyFilled, false},
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusExpired, true},
		{StatusRejected, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTerminal(tt.status))
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeFilled, OrderResponse{Status: StatusFilled}.Outcome())
	assert.Equal(t, OutcomeCancelled, OrderResponse{Status: StatusCanceled, FilledQty: 0.3}.Outcome())
	assert.Equal(t, OutcomeCancelled, OrderResponse{Status: StatusExpired}.Outcome())
	assert.Equal(t, OutcomeCancelled, OrderResponse{Status: StatusRejected}.Outcome())
}
