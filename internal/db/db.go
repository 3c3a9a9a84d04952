// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/amirphl/simple-executor/internal/journal"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	journal.Journaler
	Records(ctx context.Context, market string, from, to time.Time) ([]journal.Record, error)
	Record(ctx context.Context, orderID string) (*journal.Record, error)
}
