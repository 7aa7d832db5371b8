// Package storage contains the backend-agnostic database contract used by the
// query executor, plus a small registry so callers can open a backend by kind
// ("postgres", "mssql", "mysql", "sqlite") without importing it directly.
//
// A Database is a connection pool. Each request checks out exactly one
// Session for its whole lifetime and releases it when done; a Session is
// never shared between concurrent requests.
//
// Every QueryFirst call runs in its own transaction. Implementations must
// commit after reading the first row and roll back on any error, so that one
// failing statement can never poison the transactional state of the next.
package storage

import (
	"context"
	"time"
)

// Row is the outcome of reading a result set down to its first cell.
type Row struct {
	// Found is false when the statement returned zero rows (or no columns).
	Found bool
	// Value is the first column of the first row as returned by the driver.
	Value any
}

// Session is a connection checked out of a Database for exclusive use.
type Session interface {
	// Ping verifies the underlying connection is alive.
	Ping(ctx context.Context) error
	// QueryFirst runs sql verbatim inside a dedicated transaction and returns
	// the first column of the first row.
	QueryFirst(ctx context.Context, sql string) (Row, error)
	// Release returns the connection to the pool. Safe to call once.
	Release()
}

// Database is a pool of connections to one backend.
type Database interface {
	// Acquire checks out a session. The caller must Release it.
	Acquire(ctx context.Context) (Session, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close shuts the pool down.
	Close()
}

// Config is the storage-agnostic configuration passed to backend factories.
type Config struct {
	// Kind selects the backend ("postgres", "mssql", "mysql", "sqlite").
	Kind string
	// DSN is passed to the backend driver unchanged.
	DSN string

	// MaxConns caps open connections (pool size plus overflow).
	MaxConns int
	// MinConns keeps this many idle connections warm.
	MinConns int
	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration
	// MaxConnLifetime recycles connections older than this.
	MaxConnLifetime time.Duration
}
