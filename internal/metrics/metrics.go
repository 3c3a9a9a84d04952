// Package metrics holds the prometheus collectors of the executor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// OrdersSubmitted counts accepted submissions by side (buy/sell)
	OrdersSubmitted *prometheus.CounterVec
	// SubmitFailures counts submissions rejected by the venue
	SubmitFailures prometheus.Counter
	// OrdersClosed counts closed orders by outcome (filled/cancelled)
	OrdersClosed *prometheus.CounterVec
	PollErrors   prometheus.Counter
	// PersistErrors counts closed orders that could not be journaled and were requeued
	PersistErrors prometheus.Counter
	Pending       prometheus.Gauge
	PassDuration  prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "executor_orders_submitted_total",
				Help: "Total number of limit orders accepted by the exchange",
			},
			[]string{"side"},
		),
		SubmitFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "executor_order_submit_failures_total",
			Help: "Total number of order submissions rejected or failed",
		}),
		OrdersClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "executor_orders_closed_total",
				Help: "Total number of tracked orders reported closed by the exchange",
			},
			[]string{"outcome"},
		),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "executor_order_poll_errors_total",
			Help: "Total number of failed order status polls",
		}),
		PersistErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "executor_order_persist_errors_total",
			Help: "Total number of closed orders that failed to persist",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "executor_pending_orders",
			Help: "Number of orders waiting to be reconciled",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "executor_reconcile_pass_seconds",
			Help:    "Duration of one reconciliation pass, lock held",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
