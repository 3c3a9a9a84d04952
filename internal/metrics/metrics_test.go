package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrdersSubmitted.WithLabelValues("buy").Inc()
	m.OrdersClosed.WithLabelValues("filled").Add(2)
	m.Pending.Set(3)
	m.PassDuration.Observe(0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("buy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersClosed.WithLabelValues("filled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Pending))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
