package db

import (
	"context"
	"testing"
	"time"

	dbconf "github.com/amirphl/simple-executor/internal/db/conf"
	"github.com/amirphl/simple-executor/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Storage = (*Default)(nil)

func newTestDB(t *testing.T) *Default {
	t.Helper()
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	t.Cleanup(cleanup)

	p, err := New(*cfg)
	require.NoError(t, err)
	return p
}

func record(id, market string, at time.Time) journal.Record {
	return journal.Record{
		OrderID:   id,
		Market:    market,
		Side:      "buy",
		Status:    "filled",
		Amount:    2,
		Price:     100.5,
		TotalCost: 201.402,
		Fees:      0.402,
		Exchange:  "wallex",
		Time:      at,
	}
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(dbconf.Config{})
	assert.Error(t, err)
}

func TestAppendAndRecords(t *testing.T) {
	p := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.Append(ctx, record("a", "ETH-USDT", base)))
	require.NoError(t, p.Append(ctx, record("b", "BTC-USDT", base.Add(time.Minute))))
	require.NoError(t, p.Append(ctx, record("c", "ETH-USDT", base.Add(2*time.Minute))))

	got, err := p.Records(ctx, "eth-usdt", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, record("a", "ETH-USDT", base), got[0])
	assert.Equal(t, "c", got[1].OrderID)

	all, err := p.Records(ctx, "", base, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, all, 2, "upper bound is exclusive")

	r, err := p.Record(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "BTC-USDT", r.Market)

	missing, err := p.Record(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAppend_NeverRewrites(t *testing.T) {
	p := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := record("a", "ETH-USDT", at)
	require.NoError(t, p.Append(ctx, first))

	second := first
	second.Status = "cancelled"
	require.NoError(t, p.Append(ctx, second))

	r, err := p.Record(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, *r)

	assert.Error(t, p.Append(ctx, journal.Record{}))
}

func TestAppend_UsesContextTransaction(t *testing.T) {
	p := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tx, err := p.GetDB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, p.Append(WithTransaction(ctx, tx), record("a", "ETH-USDT", at)))
	require.NoError(t, tx.Rollback())

	r, err := p.Record(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, r, "rolled back with the caller's transaction")
}

func TestSchema_RejectsUnknownOutcome(t *testing.T) {
	p := newTestDB(t)
	bad := record("a", "ETH-USDT", time.Now().UTC())
	bad.Status = "expired"
	assert.Error(t, p.Append(context.Background(), bad))
}
