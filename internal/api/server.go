// Package api serves the executor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amirphl/simple-executor/internal/executor"
	"github.com/amirphl/simple-executor/internal/journal"
	"github.com/amirphl/simple-executor/internal/market"
	"github.com/amirphl/simple-executor/internal/order"
	"github.com/amirphl/simple-executor/internal/pricing"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Executor is the trade service behind the handlers.
type Executor interface {
	FillPrice(ctx context.Context, base, counter string, quantity float64) (executor.Quote, error)
	LimitRate(ctx context.Context, base, counter string, side market.Side, quantity float64) (float64, error)
	Balance(ctx context.Context, currency string) (market.Balance, error)
	SendOrder(ctx context.Context, req executor.TradeRequest) (order.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
	PendingOrders() []string
}

// RecordReader reads back closed orders.
type RecordReader interface {
	Records(ctx context.Context, market string, from, to time.Time) ([]journal.Record, error)
}

type Options struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Records backs /closed-orders; nil disables the endpoint.
	Records RecordReader
}

// Server handles the REST API
type Server struct {
	exec    Executor
	records RecordReader
	router  *mux.Router
	handler http.Handler
	log     *zap.SugaredLogger
}

func NewServer(exec Executor, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		exec:    exec,
		records: opts.Records,
		router:  mux.NewRouter(),
		log:     opts.Logger.Sugar().Named("api"),
	}
	s.setupRoutes(opts.Gatherer)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.router)
	return s
}

const apiPrefix = "/api/v1.0"

// setupRoutes registers every route on the root router; mux only reports 405 for
// method mismatches on routes it owns directly.
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(s.logRequests)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router.HandleFunc(apiPrefix+"/get-fill-price", s.handleGetFillPrice).Methods("GET")
	s.router.HandleFunc(apiPrefix+"/get-limit-rate", s.handleGetLimitRate).Methods("GET")
	s.router.HandleFunc(apiPrefix+"/get-currency-balance", s.handleGetCurrencyBalance).Methods("GET")
	s.router.HandleFunc(apiPrefix+"/send-order", s.handleSendOrder).Methods("POST")
	s.router.HandleFunc(apiPrefix+"/cancel-order", s.handleCancelOrder).Methods("POST")
	s.router.HandleFunc(apiPrefix+"/pending-orders", s.handlePendingOrders).Methods("GET")
	if s.records != nil {
		s.router.HandleFunc(apiPrefix+"/closed-orders", s.handleClosedOrders).Methods("GET")
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetFillPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !exactly(q, "base-currency", "counter-currency", "quantity") {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}
	quantity, ok := parsePositive(q.Get("quantity"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid quantity")
		return
	}

	quote, err := s.exec.FillPrice(r.Context(), q.Get("base-currency"), q.Get("counter-currency"), quantity)
	if err != nil {
		s.respondFailure(w, err, "invalid quantity")
		return
	}

	respondJSON(w, map[string]any{
		"success":    true,
		"fill-price": quote.Price,
		"full-fill":  quote.Full,
	})
}

func (s *Server) handleGetLimitRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !exactly(q, "base-currency", "counter-currency", "order-type", "quantity") {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}
	quantity, ok := parsePositive(q.Get("quantity"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid quantity")
		return
	}
	side, err := market.ParseSide(q.Get("order-type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order-type")
		return
	}

	rate, err := s.exec.LimitRate(r.Context(), q.Get("base-currency"), q.Get("counter-currency"), side, quantity)
	if err != nil {
		s.respondFailure(w, err, "invalid quantity")
		return
	}

	respondJSON(w, map[string]any{"success": true, "rate": rate})
}

func (s *Server) handleGetCurrencyBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !exactly(q, "currency") {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}

	bal, err := s.exec.Balance(r.Context(), q.Get("currency"))
	if err != nil {
		s.respondFailure(w, err, "")
		return
	}

	respondJSON(w, map[string]any{"success": true, "balance": bal.Available})
}

func (s *Server) handleSendOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}
	f := r.PostForm
	if !exactly(f, "base-currency", "counter-currency", "order-type", "amount") {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}
	amount, ok := parsePositive(f.Get("amount"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	side, err := market.ParseSide(f.Get("order-type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order-type")
		return
	}

	resp, err := s.exec.SendOrder(r.Context(), executor.TradeRequest{
		Base:    f.Get("base-currency"),
		Counter: f.Get("counter-currency"),
		Side:    side,
		Amount:  amount,
	})
	if err != nil {
		s.respondFailure(w, err, "invalid amount")
		return
	}

	respondJSON(w, map[string]any{
		"success":  true,
		"order-id": resp.OrderID,
		"rate":     resp.Price,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}
	if !exactly(r.PostForm, "order-id") {
		respondError(w, http.StatusBadRequest, "invalid arguments")
		return
	}

	if err := s.exec.CancelOrder(r.Context(), r.PostForm.Get("order-id")); err != nil {
		s.respondFailure(w, err, "")
		return
	}
	respondJSON(w, map[string]any{"success": true})
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.exec.PendingOrders()
	if orders == nil {
		orders = []string{}
	}
	respondJSON(w, map[string]any{"success": true, "orders": orders})
}

func (s *Server) handleClosedOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid from")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid to")
			return
		}
	}

	records, err := s.records.Records(r.Context(), q.Get("market"), from, to)
	if err != nil {
		s.log.Errorw("reading closed orders failed", "err", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	respondJSON(w, map[string]any{"success": true, "orders": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// respondFailure maps executor errors onto the API's messages. quantityMsg names the
// quantity argument of the endpoint.
func (s *Server) respondFailure(w http.ResponseWriter, err error, quantityMsg string) {
	switch {
	case errors.Is(err, executor.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, quantityMsg)
	case errors.Is(err, executor.ErrInvalidSide):
		respondError(w, http.StatusBadRequest, "invalid order-type")
	case errors.Is(err, executor.ErrInvalidMarket):
		respondError(w, http.StatusBadRequest, "invalid market")
	case errors.Is(err, executor.ErrInvalidCurrency):
		respondError(w, http.StatusBadRequest, "invalid currency")
	case errors.Is(err, executor.ErrInvalidOrderID):
		respondError(w, http.StatusBadRequest, "invalid order-id")
	case errors.Is(err, executor.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient balance")
	case errors.Is(err, pricing.ErrInsufficientDepth):
		respondError(w, http.StatusBadRequest, "insufficient depth")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.log.Errorw("exchange request failed", "err", err)
		respondError(w, http.StatusBadGateway, "exchange error")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debugw("request",
			"method", r.Method, "path", r.URL.Path, "status", sw.status, "duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// exactly reports whether v holds every key in keys and nothing else.
func exactly(v url.Values, keys ...string) bool {
	if len(v) != len(keys) {
		return false
	}
	for _, k := range keys {
		if _, ok := v[k]; !ok {
			return false
		}
	}
	return true
}

func parsePositive(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
