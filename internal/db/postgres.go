package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/simple-executor/internal/db/conf"
	"github.com/amirphl/simple-executor/internal/journal"
	_ "github.com/lib/pq"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executeWithTransaction uses the transaction carried by ctx, or runs fn in a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, fmt.Errorf("db: nil connection")
	}
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

// Append stores a closed order. A record already stored under the same order id is kept
// as is, so a retried append after an ambiguous failure does not duplicate it.
func (p *Default) Append(ctx context.Context, r journal.Record) error {
	if r.OrderID == "" {
		return fmt.Errorf("failed to save closed order: empty order id")
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO closed_orders (order_id, market, side, status, amount, price, total_cost, fees, exchange, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (order_id) DO NOTHING`,
			r.OrderID, r.Market, r.Side, r.Status, r.Amount, r.Price, r.TotalCost, r.Fees, r.Exchange, r.Time)
		if err != nil {
			return fmt.Errorf("failed to save closed order %s: %w", r.OrderID, err)
		}
		return nil
	})
}

const recordColumns = `order_id, market, side, status, amount, price, total_cost, fees, exchange, closed_at`

// Records returns the orders of market closed in [from, to), oldest first. An empty market
// matches every market.
func (p *Default) Records(ctx context.Context, market string, from, to time.Time) ([]journal.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM closed_orders WHERE closed_at >= $1 AND closed_at < $2`
	args := []any{from, to}
	if market != "" {
		query += ` AND market = $3`
		args = append(args, strings.ToUpper(market))
	}
	query += ` ORDER BY closed_at ASC, order_id ASC`

	rows, err := p.queryWithTransaction(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed orders: %w", err)
	}
	defer rows.Close()

	var records []journal.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read closed orders: %w", err)
	}
	return records, nil
}

// Record returns the closed order with orderID, or nil if none was stored.
func (p *Default) Record(ctx context.Context, orderID string) (*journal.Record, error) {
	rows, err := p.queryWithTransaction(ctx, `SELECT `+recordColumns+` FROM closed_orders WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRecord(rows *sql.Rows) (journal.Record, error) {
	var r journal.Record
	if err := rows.Scan(&r.OrderID, &r.Market, &r.Side, &r.Status, &r.Amount, &r.Price, &r.TotalCost, &r.Fees, &r.Exchange, &r.Time); err != nil {
		return journal.Record{}, fmt.Errorf("failed to scan closed order: %w", err)
	}
	r.Time = r.Time.UTC()
	return r, nil
}
