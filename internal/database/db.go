// Package database holds the bun models and the URL-dispatched
// connection logic. One DATABASE_URL serves both engines: postgres://
// URLs open a pgx-backed PostgreSQL connection, anything else is treated
// as a SQLite path (with an optional sqlite:// prefix). Missing tables
// are created on startup.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Options tunes the connection. The zero value is usable.
type Options struct {
	// Debug logs every query through bundebug.
	Debug bool
	// MaxOpenConns caps the pool; 0 keeps the driver default.
	MaxOpenConns int
}

// Open connects to the database named by url and ensures the schema
// exists. The caller owns the returned DB and must Close it.
func Open(ctx context.Context, url string, opts Options) (*bun.DB, error) {
	db, err := connect(url, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := CreateTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func connect(url string, opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		sqldb, err = sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		dsn := strings.TrimPrefix(url, "sqlite://")
		if dsn == "" {
			return nil, fmt.Errorf("empty sqlite path in database url %q", url)
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite connection: %w", err)
		}
		// SQLite serializes writers; a wider pool just piles up lock errors.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if opts.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

// CreateTables creates every missing table. Existing tables are left
// untouched; there is no migration system, the schema only grows.
func CreateTables(ctx context.Context, db *bun.DB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}
	return nil
}

var testDBSeq atomic.Int64

// OpenForTest opens a fresh in-memory SQLite database with the schema
// created, for use from _test.go files. Each call gets its own database.
func OpenForTest(ctx context.Context) (*bun.DB, error) {
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	return Open(ctx, dsn, Options{})
}
