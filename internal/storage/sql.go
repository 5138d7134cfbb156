package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenSQL opens and pings a database for driver ("sqlite" or "postgres").
// SQLite databases are switched to WAL mode.
func OpenSQL(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// SQLBackend stores payloads in a single kv_store table.
type SQLBackend struct {
	db *sqlx.DB
}

// NewSQLBackend creates the table if needed.
func NewSQLBackend(ctx context.Context, db *sqlx.DB) (*SQLBackend, error) {
	b := &SQLBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate kv_store: %w", err)
	}
	log.Printf("[INFO] sql state store ready (%s)", db.DriverName())
	return b, nil
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv_store (
		skey       TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	return err
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := b.db.GetContext(ctx, &payload, b.db.Rebind(`SELECT payload FROM kv_store WHERE skey = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (b *SQLBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.db.ExecContext(ctx, b.db.Rebind(`INSERT INTO kv_store (skey, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (skey) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`),
		key, string(data), time.Now().UnixMilli())
	return err
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM kv_store WHERE skey = ?`), key)
	return err
}

func (b *SQLBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.SelectContext(ctx, &keys, b.db.Rebind(`SELECT skey FROM kv_store WHERE skey LIKE ? ESCAPE '\' ORDER BY skey`), likePrefix(prefix))
	return keys, err
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
