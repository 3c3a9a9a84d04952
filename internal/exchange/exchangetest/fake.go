// Package exchangetest provides a scripted in-memory exchange for tests.
package exchangetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
)

// Fake records every call and reports how many were ever in flight at once.
// Order statuses are scripted per id; the last scripted response repeats.
type Fake struct {
	// Delay is slept inside every call to widen race windows.
	Delay time.Duration

	mu         sync.Mutex
	markets    map[string]bool
	currencies map[string]bool
	books      map[string][]market.Level
	balances   map[string]float64
	statuses   map[string][]order.OrderResponse
	statusErrs map[string]error
	polls      map[string]int
	submitErr  error
	blankIDs   bool
	submitted  []order.OrderRequest
	cancelled  []string
	nextID     int

	inflight    atomic.Int32
	maxInflight atomic.Int32
	calls       atomic.Int32
}

func New() *Fake {
	return &Fake{
		markets:    make(map[string]bool),
		currencies: make(map[string]bool),
		books:      make(map[string][]market.Level),
		balances:   make(map[string]float64),
		statuses:   make(map[string][]order.OrderResponse),
		statusErrs: make(map[string]error),
		polls:      make(map[string]int),
	}
}

// AddMarket registers base-counter and both currencies.
func (f *Fake) AddMarket(base, counter string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[market.FormatMarket(base, counter)] = true
	f.currencies[strings.ToUpper(base)] = true
	f.currencies[strings.ToUpper(counter)] = true
	return f
}

func (f *Fake) SetBook(symbol string, side market.Side, levels ...market.Level) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[bookKey(symbol, side)] = levels
	return f
}

func (f *Fake) SetBalance(currency string, available float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[strings.ToUpper(currency)] = available
	f.currencies[strings.ToUpper(currency)] = true
	return f
}

func (f *Fake) SetSubmitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SetBlankOrderIDs makes successful submissions come back without an order id.
func (f *Fake) SetBlankOrderIDs(blank bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blankIDs = blank
}

// ScriptStatus sets the responses returned by successive polls of id.
func (f *Fake) ScriptStatus(id string, seq ...order.OrderResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range seq {
		seq[i].OrderID = id
	}
	f.statuses[id] = seq
}

// SetStatusError makes polls of id fail until cleared with a nil error.
func (f *Fake) SetStatusError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.statusErrs, id)
		return
	}
	f.statusErrs[id] = err
}

func (f *Fake) Polls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func (f *Fake) Submitted() []order.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.OrderRequest(nil), f.submitted...)
}

func (f *Fake) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// MaxInFlight is the largest number of calls observed executing concurrently.
func (f *Fake) MaxInFlight() int32 { return f.maxInflight.Load() }

// Calls is the total number of calls made.
func (f *Fake) Calls() int32 { return f.calls.Load() }

func (f *Fake) enter() func() {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	return func() { f.inflight.Add(-1) }
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) FetchOrderBook(ctx context.Context, symbol string, side market.Side) (market.OrderBook, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return market.OrderBook{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	levels := append([]market.Level(nil), f.books[bookKey(symbol, side)]...)
	return market.OrderBook{Market: symbol, Side: side, Levels: levels, Timestamp: time.Now().UTC()}, nil
}

func (f *Fake) FetchBalance(ctx context.Context, currency string) (market.Balance, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return market.Balance{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c := strings.ToUpper(currency)
	return market.Balance{Currency: c, Available: f.balances[c], Total: f.balances[c]}, nil
}

func (f *Fake) SubmitOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return order.OrderResponse{}, f.submitErr
	}

	f.nextID++
	id := fmt.Sprintf("order-%d", f.nextID)
	if f.blankIDs {
		id = ""
	}
	f.submitted = append(f.submitted, req)
	now := time.Now().UTC()
	return order.OrderResponse{
		OrderID:   id,
		Market:    req.Market,
		Side:      req.Side,
		Type:      req.Type,
		Status:    order.StatusNew,
		IsOpen:    true,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timestamp: now,
		UpdatedAt: now,
	}, nil
}

func (f *Fake) GetOrderStatus(ctx context.Context, orderID string) (order.OrderResponse, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return order.OrderResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[orderID]++
	if err := f.statusErrs[orderID]; err != nil {
		return order.OrderResponse{}, err
	}

	seq := f.statuses[orderID]
	if len(seq) == 0 {
		return order.OrderResponse{OrderID: orderID, Status: order.StatusNew, IsOpen: true}, nil
	}
	resp := seq[0]
	if len(seq) > 1 {
		f.statuses[orderID] = seq[1:]
	}
	return resp, nil
}

func (f *Fake) CancelOrder(ctx context.Context, orderID string) error {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *Fake) IsValidMarket(ctx context.Context, base, counter string) (bool, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markets[market.FormatMarket(base, counter)], nil
}

func (f *Fake) IsValidCurrency(ctx context.Context, currency string) (bool, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currencies[strings.ToUpper(currency)], nil
}

// Open is a still-resting status response.
func Open() order.OrderResponse {
	return order.OrderResponse{Status: order.StatusNew, IsOpen: true}
}

// Filled is a closed, fully executed status response.
func Filled(symbol string, side market.Side, price, qty, fee float64) order.OrderResponse {
	return order.OrderResponse{
		Market:     symbol,
		Side:       side,
		Type:       order.TypeLimit,
		Status:     order.StatusFilled,
		Price:      price,
		Quantity:   qty,
		FilledQty:  qty,
		Commission: fee,
		UpdatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func bookKey(symbol string, side market.Side) string {
	return strings.ToUpper(symbol) + "/" + string(side)
}
