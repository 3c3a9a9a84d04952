// Package tracker owns the exchange-facing critical section and follows submitted orders
// until the venue reports them closed.
//
// A Tracker holds one exclusive lock that guards both the exchange handle and the queue of
// pending order ids. Request handlers enter it through Do; the reconciliation loop takes it
// once per pass. Nothing else touches the exchange.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/simple-executor/internal/exchange"
	"github.com/amirphl/simple-executor/internal/journal"
	"github.com/amirphl/simple-executor/internal/metrics"
	"github.com/amirphl/simple-executor/internal/notifier"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Second

type Config struct {
	// Interval is the pause between two reconciliation passes.
	Interval time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Notifier notifier.Notifier
}

type Tracker struct {
	mu    sync.Mutex
	ex    exchange.Exchange
	queue []string

	journal  journal.Journaler
	interval time.Duration
	clock    clock.Clock
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	notifier notifier.Notifier
}

func New(ex exchange.Exchange, j journal.Journaler, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.Nop{}
	}

	return &Tracker{
		ex:       ex,
		journal:  j,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		log:      cfg.Logger.Sugar().Named("tracker"),
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
	}
}

// Session is the view of the tracker handed to code running inside Do.
// It must not be retained after Do returns.
type Session struct {
	t *Tracker
}

func (s *Session) Exchange() exchange.Exchange {
	return s.t.ex
}

// Track enqueues id; the caller already holds the lock.
func (s *Session) Track(id string) {
	s.t.enqueue(id)
}

// Do runs fn while holding the lock. The lock is released on every exit path.
func (t *Tracker) Do(fn func(s *Session) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(&Session{t: t})
}

// Track hands an order to the reconciliation loop.
func (t *Tracker) Track(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueue(id)
}

func (t *Tracker) enqueue(id string) {
	t.queue = append(t.queue, id)
	t.metrics.Pending.Set(float64(len(t.queue)))
}

// Pending returns the queued ids in polling order.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.queue...)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// PassStats summarizes one reconciliation pass.
type PassStats struct {
	Polled    int
	Closed    int
	Requeued  int
	PollFails int
}

// Reconcile polls every order queued when the pass starts exactly once. Orders enqueued
// while the pass runs wait for the next one. Notifications go out after the lock is released.
func (t *Tracker) Reconcile(ctx context.Context) PassStats {
	stats, messages := t.pass(ctx)
	for _, msg := range messages {
		if err := t.notifier.Send(ctx, msg); err != nil {
			t.log.Warnw("notification failed", "err", err)
		}
	}
	return stats
}

func (t *Tracker) pass(ctx context.Context) (PassStats, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.clock.Now()
	defer func() {
		t.metrics.PassDuration.Observe(t.clock.Since(start).Seconds())
		t.metrics.Pending.Set(float64(len(t.queue)))
	}()

	var (
		stats    PassStats
		messages []string
	)
	n := len(t.queue)
	for i := 0; i < n; i++ {
		id := t.queue[0]
		t.queue = t.queue[1:]

		if ctx.Err() != nil {
			// shutting down: keep the order for a later run
			t.queue = append(t.queue, id)
			stats.Requeued++
			continue
		}

		stats.Polled++
		resp, err := t.ex.GetOrderStatus(ctx, id)
		if err != nil {
			t.log.Warnw("order status poll failed", "order_id", id, "err", err)
			t.metrics.PollErrors.Inc()
			t.queue = append(t.queue, id)
			stats.PollFails++
			stats.Requeued++
			continue
		}

		if resp.IsOpen {
			t.queue = append(t.queue, id)
			stats.Requeued++
			continue
		}

		if resp.OrderID == "" {
			resp.OrderID = id
		}
		rec := journal.NewRecord(resp, t.ex.Name())
		if err := t.journal.Append(ctx, rec); err != nil {
			t.log.Errorw("persisting closed order failed", "order_id", id, "err", err)
			t.metrics.PersistErrors.Inc()
			t.queue = append(t.queue, id)
			stats.Requeued++
			continue
		}

		stats.Closed++
		t.metrics.OrdersClosed.WithLabelValues(rec.Status).Inc()
		t.log.Infow("order closed",
			"order_id", id,
			"market", rec.Market,
			"side", rec.Side,
			"status", rec.Status,
			"amount", rec.Amount,
			"total_cost", rec.TotalCost,
			"fees", rec.Fees)

		messages = append(messages, fmt.Sprintf("Order %s %s: %s %.8f %s, total %.8f, fees %.8f",
			id, rec.Status, rec.Side, rec.Amount, rec.Market, rec.TotalCost, rec.Fees))
	}

	return stats, messages
}

// Run reconciles every Interval until ctx is cancelled. The pause starts after a pass ends,
// so passes never overlap.
func (t *Tracker) Run(ctx context.Context) error {
	t.log.Infow("reconciliation loop started", "interval", t.interval)
	defer t.log.Info("reconciliation loop stopped")

	for {
		timer := t.clock.Timer(t.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		stats := t.Reconcile(ctx)
		if stats.Polled > 0 {
			t.log.Debugw("reconciliation pass",
				"polled", stats.Polled, "closed", stats.Closed, "requeued", stats.Requeued, "poll_failures", stats.PollFails)
		}
	}
}
