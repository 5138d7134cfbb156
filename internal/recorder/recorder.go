package recorder

import (
	"time"

	"MarketReplay/internal/model"
)

// FillEvent is one accepted order.
type FillEvent struct {
	Symbol  string
	ChartID string
	Fill    *model.Fill
}

// ResetEvent marks a chart slot wiped back to its initial funding.
type ResetEvent struct {
	ChartID     string
	At          time.Time
	InitialCash float64
}

// SnapshotEvent is a periodic mark of one slot's ledger.
type SnapshotEvent struct {
	Snapshot *model.Snapshot
	BarTime  int64 // epoch millis of the bar the price came from
}

// FillRecord is a journaled fill as read back for export.
type FillRecord struct {
	ID            int64   `db:"id" json:"id" parquet:"id"`
	Timestamp     int64   `db:"timestamp" json:"timestamp" parquet:"timestamp"`
	Symbol        string  `db:"symbol" json:"symbol" parquet:"symbol"`
	ChartID       string  `db:"chart_id" json:"chart_id" parquet:"chart_id"`
	TradeID       string  `db:"trade_id" json:"trade_id" parquet:"trade_id"`
	Kind          string  `db:"kind" json:"kind" parquet:"kind"`
	Side          string  `db:"side" json:"side" parquet:"side"`
	Quantity      int64   `db:"quantity" json:"quantity" parquet:"quantity"`
	Price         float64 `db:"price" json:"price" parquet:"price"`
	RealizedDelta float64 `db:"realized_delta" json:"realized_delta" parquet:"realized_delta"`
	CashAfter     float64 `db:"cash_after" json:"cash_after" parquet:"cash_after"`
	NetAfter      int64   `db:"net_after" json:"net_after" parquet:"net_after"`
}

// Fill kinds.
const (
	KindOpen   = "OPEN"
	KindAdd    = "ADD"
	KindReduce = "REDUCE"
	KindFlip   = "FLIP"
	KindClose  = "CLOSE"
)

// FillKind classifies what a fill did to its position.
func FillKind(f *model.Fill) string {
	switch {
	case f.Closed:
		return KindClose
	case f.Flipped:
		return KindFlip
	case len(f.Trade.Transactions) <= 1:
		return KindOpen
	case f.Transaction.Side.Sign() == f.Trade.Direction():
		return KindAdd
	default:
		return KindReduce
	}
}

// Recorder journals ledger activity for later analysis.
type Recorder interface {
	RecordFill(evt *FillEvent) error
	RecordReset(evt *ResetEvent) error
	RecordSnapshot(evt *SnapshotEvent) error
	// Fills returns fills journaled in [since, until), oldest first.
	Fills(since, until time.Time) ([]FillRecord, error)
	Close() error
}
