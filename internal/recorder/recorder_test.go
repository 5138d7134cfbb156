package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketReplay/internal/model"
)

func fill(side model.Side, qty, net int64, price float64, at time.Time, txs int) *model.Fill {
	tx := model.Transaction{ID: "tx", Side: side, Quantity: qty, Price: decimal.NewFromFloat(price), Timestamp: at}
	trade := model.Trade{ID: "trade-1", NetQuantity: net, Transactions: make([]model.Transaction, txs)}
	return &model.Fill{Trade: trade, Transaction: tx, RealizedDelta: decimal.Zero, CashAfter: decimal.NewFromInt(9000)}
}

func TestFillKind(t *testing.T) {
	at := time.Now()
	assert.Equal(t, KindOpen, FillKind(fill(model.SideBuy, 10, 10, 1, at, 1)))
	assert.Equal(t, KindAdd, FillKind(fill(model.SideBuy, 10, 20, 1, at, 2)))
	assert.Equal(t, KindReduce, FillKind(fill(model.SideSell, 5, 15, 1, at, 3)))
	assert.Equal(t, KindAdd, FillKind(fill(model.SideSell, 5, -10, 1, at, 2)))

	f := fill(model.SideSell, 30, -15, 1, at, 4)
	f.Flipped = true
	assert.Equal(t, KindFlip, FillKind(f))
	f = fill(model.SideSell, 15, 0, 1, at, 4)
	f.Closed = true
	assert.Equal(t, KindClose, FillKind(f))
}

func exerciseRecorder(t *testing.T, r *SQLRecorder) {
	t.Helper()
	base := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordFill(&FillEvent{Symbol: "AAPL", ChartID: "primary", Fill: fill(model.SideBuy, 10, 10, 100.5, base, 1)}))
	require.NoError(t, r.RecordFill(&FillEvent{Symbol: "AAPL", ChartID: "primary", Fill: fill(model.SideSell, 4, 6, 101, base.Add(time.Minute), 2)}))
	require.NoError(t, r.RecordFill(&FillEvent{Symbol: "TSLA", ChartID: "secondary", Fill: fill(model.SideSell, 1, -1, 200, base.Add(25*time.Hour), 1)}))
	require.NoError(t, r.RecordReset(&ResetEvent{ChartID: "primary", At: base, InitialCash: 10000}))

	snap := &model.Snapshot{Symbol: "AAPL", ChartID: "primary", CurrentPrice: decimal.NewFromInt(101), Cash: decimal.NewFromInt(9000),
		RealizedPnL: decimal.Zero, Unrealized: decimal.NewFromInt(3), AccountValue: decimal.NewFromInt(9003),
		Open: &model.Trade{NetQuantity: 6}}
	require.NoError(t, r.RecordSnapshot(&SnapshotEvent{Snapshot: snap, BarTime: base.UnixMilli()}))

	fills, err := r.Fills(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "AAPL", fills[0].Symbol)
	assert.Equal(t, KindOpen, fills[0].Kind)
	assert.Equal(t, 100.5, fills[0].Price)
	assert.Equal(t, "SELL", fills[1].Side)
	assert.Equal(t, KindReduce, fills[1].Kind)
	assert.Equal(t, int64(6), fills[1].NetAfter)
	assert.Equal(t, "trade-1", fills[1].TradeID)

	n, err := r.SnapshotCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLRecorder_SQLite(t *testing.T) {
	r, err := NewSQLRecorder("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer r.Close()
	exerciseRecorder(t, r)
}

func TestSQLRecorder_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	r, err := NewSQLRecorder("postgres", dsn)
	require.NoError(t, err)
	defer r.Close()
	for _, table := range []string{"fills", "resets", "snapshots"} {
		_, err := r.db.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
	exerciseRecorder(t, r)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordFill(&FillEvent{}))
	fills, err := r.Fills(time.Time{}, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, fills)
	assert.NoError(t, r.Close())
}
