// Package postgres registers the "postgres" storage kind using pgx v5.
//
// The pool is a pgxpool.Pool; a Session pins one *pgxpool.Conn for the whole
// request. Statements run with the simple query protocol so arbitrary
// uploaded text executes verbatim and does not churn the prepared-statement
// cache.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"querygrid/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//
// ===========================
//  Interface seams for testing
// ===========================
//
// rowsLike/txLike/connLike are the minimal subsets of pgx.Rows, pgx.Tx and
// *pgxpool.Conn used by the session, so tests can inject doubles without a
// live server.
//

type rowsLike interface {
	Next() bool
	Values() ([]any, error)
	Close()
	Err() error
}

type txLike interface {
	Query(ctx context.Context, sql string, args ...any) (rowsLike, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type connLike interface {
	Begin(ctx context.Context) (txLike, error)
	Ping(ctx context.Context) error
	Release()
}

type realTx struct{ tx pgx.Tx }

func (r realTx) Query(ctx context.Context, sql string, args ...any) (rowsLike, error) {
	return r.tx.Query(ctx, sql, args...)
}
func (r realTx) Commit(ctx context.Context) error   { return r.tx.Commit(ctx) }
func (r realTx) Rollback(ctx context.Context) error { return r.tx.Rollback(ctx) }

type realConn struct{ c *pgxpool.Conn }

func (r realConn) Begin(ctx context.Context) (txLike, error) {
	tx, err := r.c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return realTx{tx}, nil
}
func (r realConn) Ping(ctx context.Context) error { return r.c.Ping(ctx) }
func (r realConn) Release()                       { r.c.Release() }

// newPool is a test hook that points to pgxpool.NewWithConfig by default.
var newPool = pgxpool.NewWithConfig

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Database, error) {
		db, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
}

// Database is a pgxpool-backed storage.Database.
type Database struct {
	pool *pgxpool.Pool
	cfg  storage.Config
}

var _ storage.Database = (*Database)(nil)

// PoolConfig translates cfg into a pgxpool configuration.
func PoolConfig(cfg storage.Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	return pcfg, nil
}

// Open builds the pool. pgxpool connects lazily, so an unreachable server
// surfaces on the first Acquire or Ping rather than here.
func Open(ctx context.Context, cfg storage.Config) (*Database, error) {
	pcfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Database{pool: pool, cfg: cfg}, nil
}

// Acquire checks out one connection for exclusive use.
func (d *Database) Acquire(ctx context.Context) (storage.Session, error) {
	if d.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AcquireTimeout)
		defer cancel()
	}
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	return &Session{conn: realConn{c}}, nil
}

// Ping verifies the server is reachable.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close closes every pooled connection.
func (d *Database) Close() { d.pool.Close() }

// Session is a storage.Session over one pooled connection.
type Session struct {
	conn     connLike
	released bool
}

var _ storage.Session = (*Session)(nil)

// Ping checks the pinned connection.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// QueryFirst runs q in its own transaction and returns row 0, column 0.
// pgx reports most statement errors through rows.Err after Close, so the
// result set is always closed before deciding between commit and rollback.
func (s *Session) QueryFirst(ctx context.Context, q string) (storage.Row, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return storage.Row{}, fmt.Errorf("postgres: begin: %w", err)
	}

	row, err := firstCell(ctx, tx, q)
	if err != nil {
		_ = tx.Rollback(ctx)
		return storage.Row{}, describe(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Row{}, fmt.Errorf("postgres: commit: %w", err)
	}
	return row, nil
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.conn.Release()
}

func firstCell(ctx context.Context, tx txLike, q string) (storage.Row, error) {
	rows, err := tx.Query(ctx, q)
	if err != nil {
		return storage.Row{}, err
	}

	var row storage.Row
	if rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return storage.Row{}, err
		}
		if len(vals) > 0 {
			row = storage.Row{Found: true, Value: normalize(vals[0])}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storage.Row{}, err
	}
	return row, nil
}

// normalize turns pgx-specific value types into plain Go values.
func normalize(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// describe keeps the server's SQLSTATE and detail next to the error text.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return fmt.Errorf("postgres: query: %w (%s; sqlstate %s)", err, pgErr.Detail, pgErr.SQLState())
		}
		return fmt.Errorf("postgres: query: %w (sqlstate %s)", err, pgErr.SQLState())
	}
	return fmt.Errorf("postgres: query: %w", err)
}
