package recorder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"MarketReplay/internal/storage"
)

// SQLRecorder journals to SQLite or Postgres.
type SQLRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewSQLRecorder opens (or creates) the journal database and runs migrations.
func NewSQLRecorder(driver, dsn string) (*SQLRecorder, error) {
	db, err := storage.OpenSQL(context.Background(), driver, dsn)
	if err != nil {
		return nil, err
	}
	r := &SQLRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[INFO] %s recorder opened", driver)
	return r, nil
}

func (r *SQLRecorder) migrate() error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.db.DriverName() == storage.DriverPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			` + id + `,
			timestamp      BIGINT NOT NULL,
			symbol         TEXT NOT NULL,
			chart_id       TEXT NOT NULL,
			trade_id       TEXT NOT NULL,
			kind           TEXT NOT NULL,
			side           TEXT NOT NULL,
			quantity       BIGINT NOT NULL,
			price          DOUBLE PRECISION,
			realized_delta DOUBLE PRECISION,
			cash_after     DOUBLE PRECISION,
			net_after      BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills(timestamp)`,

		`CREATE TABLE IF NOT EXISTS resets (
			` + id + `,
			timestamp    BIGINT NOT NULL,
			chart_id     TEXT NOT NULL,
			initial_cash DOUBLE PRECISION
		)`,

		`CREATE TABLE IF NOT EXISTS snapshots (
			` + id + `,
			timestamp     BIGINT NOT NULL,
			bar_time      BIGINT,
			symbol        TEXT NOT NULL,
			chart_id      TEXT NOT NULL,
			price         DOUBLE PRECISION,
			cash          DOUBLE PRECISION,
			realized_pnl  DOUBLE PRECISION,
			unrealized    DOUBLE PRECISION,
			account_value DOUBLE PRECISION,
			net_quantity  BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(s)[:30], err)
		}
	}
	return nil
}

func (r *SQLRecorder) RecordFill(evt *FillEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := evt.Fill
	_, err := r.db.Exec(r.db.Rebind(`INSERT INTO fills
		(timestamp, symbol, chart_id, trade_id, kind, side, quantity, price, realized_delta, cash_after, net_after)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`),
		f.Transaction.Timestamp.UnixMilli(), evt.Symbol, evt.ChartID, f.Trade.ID, FillKind(f),
		string(f.Transaction.Side), f.Transaction.Quantity, f.Transaction.Price.InexactFloat64(),
		f.RealizedDelta.InexactFloat64(), f.CashAfter.InexactFloat64(), f.Trade.NetQuantity,
	)
	return err
}

func (r *SQLRecorder) RecordReset(evt *ResetEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(r.db.Rebind(`INSERT INTO resets (timestamp, chart_id, initial_cash) VALUES (?,?,?)`),
		evt.At.UnixMilli(), evt.ChartID, evt.InitialCash,
	)
	return err
}

func (r *SQLRecorder) RecordSnapshot(evt *SnapshotEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := evt.Snapshot
	var net int64
	if s.Open != nil {
		net = s.Open.NetQuantity
	}
	_, err := r.db.Exec(r.db.Rebind(`INSERT INTO snapshots
		(timestamp, bar_time, symbol, chart_id, price, cash, realized_pnl, unrealized, account_value, net_quantity)
		VALUES (?,?,?,?,?,?,?,?,?,?)`),
		time.Now().UnixMilli(), evt.BarTime, s.Symbol, s.ChartID, s.CurrentPrice.InexactFloat64(),
		s.Cash.InexactFloat64(), s.RealizedPnL.InexactFloat64(), s.Unrealized.InexactFloat64(),
		s.AccountValue.InexactFloat64(), net,
	)
	return err
}

func (r *SQLRecorder) Fills(since, until time.Time) ([]FillRecord, error) {
	var out []FillRecord
	err := r.db.Select(&out, r.db.Rebind(`SELECT id, timestamp, symbol, chart_id, trade_id, kind, side,
		quantity, price, realized_delta, cash_after, net_after
		FROM fills WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id`),
		since.UnixMilli(), until.UnixMilli(),
	)
	return out, err
}

// SnapshotCount returns the number of journaled snapshots.
func (r *SQLRecorder) SnapshotCount() (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM snapshots`)
	return n, err
}

func (r *SQLRecorder) Close() error {
	log.Println("[INFO] closing sql recorder")
	return r.db.Close()
}
