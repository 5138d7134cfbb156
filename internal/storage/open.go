package storage

import (
	"context"
	"fmt"
	"log"
)

// Options selects and configures a backend.
type Options struct {
	Driver string // memory, file, redis, sqlite, postgres
	Path   string // file: directory
	DSN    string // sqlite: file path, postgres: connection string
	Redis  RedisOptions
}

// Open builds a Store for opts.Driver.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Driver {
	case "", "memory":
		b = NewMemoryBackend()
	case "file":
		b, err = NewFileBackend(opts.Path)
	case "redis":
		b, err = NewRedisBackend(ctx, opts.Redis)
	case DriverSQLite, DriverPostgres:
		db, openErr := OpenSQL(ctx, opts.Driver, opts.DSN)
		if openErr != nil {
			return nil, openErr
		}
		if b, err = NewSQLBackend(ctx, db); err != nil {
			db.Close()
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", opts.Driver, err)
	}
	log.Printf("[INFO] state storage: %s", orDefault(opts.Driver, "memory"))
	return NewStore(b), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
