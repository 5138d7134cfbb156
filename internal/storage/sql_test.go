package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQL(ctx, DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	b, err := NewSQLBackend(ctx, db)
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestSQLBackend_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := OpenSQL(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DROP TABLE IF EXISTS kv_store`)
	require.NoError(t, err)
	b, err := NewSQLBackend(ctx, db)
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "")
	require.Error(t, err)
}
