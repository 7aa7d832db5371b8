// Package sqldb implements storage.Database on top of database/sql. The
// mssql, mysql, sqlite and duckdb backends differ only in driver name and DSN
// validation, so they all delegate here.
//
// Sessions pin a single *sql.Conn for their lifetime; each QueryFirst runs in
// its own transaction on that connection.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"querygrid/internal/storage"
)

//
// =======================
//  Testability-first seams
// =======================
//
// connCore/txCore/rowsCore are the narrow subsets of *sql.Conn, *sql.Tx and
// *sql.Rows the session uses, so unit tests can inject fakes without a
// driver. realRows adds the column type lookup *sql.Rows exposes only as
// *sql.ColumnType.
//

type rowsCore interface {
	Columns() ([]string, error)
	// DatabaseTypeName returns the driver's type name for column i, or "".
	DatabaseTypeName(i int) string
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type txCore interface {
	QueryContext(ctx context.Context, query string, args ...any) (rowsCore, error)
	Commit() error
	Rollback() error
}

type connCore interface {
	PingContext(ctx context.Context) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txCore, error)
	Close() error
}

type realTx struct{ tx *sql.Tx }

func (r realTx) QueryContext(ctx context.Context, q string, args ...any) (rowsCore, error) {
	rows, err := r.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return realRows{rows}, nil
}
func (r realTx) Commit() error   { return r.tx.Commit() }
func (r realTx) Rollback() error { return r.tx.Rollback() }

type realRows struct{ *sql.Rows }

func (r realRows) DatabaseTypeName(i int) string {
	types, err := r.ColumnTypes()
	if err != nil || i >= len(types) {
		return ""
	}
	return types[i].DatabaseTypeName()
}

type realConn struct{ c *sql.Conn }

func (r realConn) PingContext(ctx context.Context) error { return r.c.PingContext(ctx) }
func (r realConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (txCore, error) {
	tx, err := r.c.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return realTx{tx}, nil
}
func (r realConn) Close() error { return r.c.Close() }

// DB is a database/sql-backed storage.Database.
type DB struct {
	db             *sql.DB
	name           string
	acquireTimeout time.Duration
}

var _ storage.Database = (*DB)(nil)

// Open creates a pool for driverName. It does not dial: the first Acquire or
// Ping does, so a service can start while its database is still down.
func Open(driverName, dsn string, cfg storage.Config) (*DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driverName, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return &DB{db: db, name: driverName, acquireTimeout: cfg.AcquireTimeout}, nil
}

// Acquire pins one connection for exclusive use by the caller.
func (d *DB) Acquire(ctx context.Context) (storage.Session, error) {
	if d.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.acquireTimeout)
		defer cancel()
	}
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire: %w", d.name, err)
	}
	return NewSession(d.name, realConn{c}), nil
}

// Ping verifies the backend is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: ping: %w", d.name, err)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() { _ = d.db.Close() }

// SQL exposes the underlying pool for tests and migrations.
func (d *DB) SQL() *sql.DB { return d.db }
