package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"querygrid/internal/storage"

	_ "modernc.org/sqlite"
)

//
// ==============================
//  Fakes for the connection seams
// ==============================
//

type fakeRows struct {
	cols    []string
	types   []string
	values  [][]any
	next    int
	scanErr error
	closed  bool
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) DatabaseTypeName(i int) string {
	if i < len(r.types) {
		return r.types[i]
	}
	return ""
}
func (r *fakeRows) Next() bool {
	if r.next >= len(r.values) {
		return false
	}
	r.next++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	for i, d := range dest {
		*(d.(*any)) = r.values[r.next-1][i]
	}
	return nil
}
func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { r.closed = true; return nil }

type fakeTx struct {
	rows       *fakeRows
	queryErr   error
	commitErr  error
	committed  bool
	rolledBack bool
	queries    []string
}

func (t *fakeTx) QueryContext(ctx context.Context, q string, args ...any) (rowsCore, error) {
	t.queries = append(t.queries, q)
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	return t.rows, nil
}
func (t *fakeTx) Commit() error   { t.committed = true; return t.commitErr }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

type fakeConn struct {
	tx       *fakeTx
	beginErr error
	pingErr  error
	closes   int
}

func (c *fakeConn) PingContext(ctx context.Context) error { return c.pingErr }
func (c *fakeConn) BeginTx(ctx context.Context, _ *sql.TxOptions) (txCore, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}
func (c *fakeConn) Close() error { c.closes++; return nil }

func TestQueryFirst_CommitsAndReturnsFirstCell(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{rows: &fakeRows{
		cols:   []string{"a", "b"},
		values: [][]any{{int64(7), "x"}, {int64(8), "y"}},
	}}
	s := NewSession("fake", &fakeConn{tx: tx})

	row, err := s.QueryFirst(context.Background(), "SELECT a, b FROM t")
	if err != nil {
		t.Fatalf("QueryFirst: %v", err)
	}
	if !row.Found || row.Value != int64(7) {
		t.Fatalf("row = %+v, want Found with 7", row)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want commit only", tx.committed, tx.rolledBack)
	}
	if !tx.rows.closed {
		t.Fatal("rows not closed")
	}
}

func TestQueryFirst_NumericBytes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		typeName string
		raw      []byte
		want     any // *big.Rat value as a float, or the raw bytes
	}{
		{"mysql decimal", "DECIMAL", []byte("1234.50"), 1234.5},
		{"mysql unsigned bigint", "UNSIGNED BIGINT", []byte("42"), 42.0},
		{"mssql money", "MONEY", []byte("-3.2500"), -3.25},
		{"sized decimal", "decimal(18,2)", []byte(" 7.10 "), 7.1},
		{"varchar stays bytes", "VARCHAR", []byte("12"), []byte("12")},
		{"unknown type stays bytes", "", []byte("12"), []byte("12")},
		{"unparsable stays bytes", "DECIMAL", []byte("n/a"), []byte("n/a")},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			tx := &fakeTx{rows: &fakeRows{
				cols:   []string{"v"},
				types:  []string{c.typeName},
				values: [][]any{{c.raw}},
			}}
			row, err := NewSession("fake", &fakeConn{tx: tx}).QueryFirst(context.Background(), "SELECT v")
			if err != nil {
				t.Fatalf("QueryFirst: %v", err)
			}
			switch want := c.want.(type) {
			case float64:
				r, ok := row.Value.(*big.Rat)
				if !ok {
					t.Fatalf("Value = %T, want *big.Rat", row.Value)
				}
				if f, _ := r.Float64(); f != want {
					t.Fatalf("Value = %v, want %v", f, want)
				}
			case []byte:
				if got, ok := row.Value.([]byte); !ok || string(got) != string(want) {
					t.Fatalf("Value = %#v, want %q", row.Value, want)
				}
			}
		})
	}
}

func TestQueryFirst_EmptyResult(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{rows: &fakeRows{cols: []string{"a"}}}
	s := NewSession("fake", &fakeConn{tx: tx})

	row, err := s.QueryFirst(context.Background(), "SELECT a FROM t WHERE false")
	if err != nil {
		t.Fatalf("QueryFirst: %v", err)
	}
	if row.Found {
		t.Fatalf("row = %+v, want not found", row)
	}
	if !tx.committed {
		t.Fatal("empty result should still commit")
	}
}

func TestQueryFirst_ErrorsRollBack(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cases := []struct {
		name string
		tx   *fakeTx
	}{
		{"query", &fakeTx{queryErr: boom}},
		{"scan", &fakeTx{rows: &fakeRows{cols: []string{"a"}, values: [][]any{{1}}, scanErr: boom}}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			s := NewSession("fake", &fakeConn{tx: c.tx})
			_, err := s.QueryFirst(context.Background(), "SELECT 1")
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v", err, boom)
			}
			if !c.tx.rolledBack || c.tx.committed {
				t.Fatalf("rolledBack=%v committed=%v", c.tx.rolledBack, c.tx.committed)
			}
		})
	}
}

func TestQueryFirst_BeginError(t *testing.T) {
	t.Parallel()

	boom := errors.New("conn gone")
	s := NewSession("fake", &fakeConn{beginErr: boom})
	if _, err := s.QueryFirst(context.Background(), "SELECT 1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	t.Parallel()

	c := &fakeConn{}
	s := NewSession("fake", c)
	s.Release()
	s.Release()
	if c.closes != 1 {
		t.Fatalf("closes = %d, want 1", c.closes)
	}
}

// openSQLite opens a file-backed SQLite pool; ":memory:" would give each
// pooled connection its own private database.
func openSQLite(tb testing.TB) *DB {
	tb.Helper()
	dsn := filepath.Join(tb.TempDir(), "q.db")
	db, err := Open("sqlite", dsn, storage.Config{MaxConns: 2})
	if err != nil {
		tb.Fatalf("Open: %v", err)
	}
	tb.Cleanup(db.Close)
	return db
}

func TestSQLite_IsolatesEachQuery(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	ctx := context.Background()
	if _, err := db.SQL().ExecContext(ctx, `CREATE TABLE sales (amount INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.SQL().ExecContext(ctx, `INSERT INTO sales VALUES (10), (32)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	s, err := db.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer s.Release()

	if _, err := s.QueryFirst(ctx, "SELECT nope FROM missing"); err == nil {
		t.Fatal("expected error for missing table")
	}

	row, err := s.QueryFirst(ctx, "SELECT SUM(amount) FROM sales")
	if err != nil {
		t.Fatalf("query after failure: %v", err)
	}
	if !row.Found || row.Value != int64(42) {
		t.Fatalf("row = %+v, want 42", row)
	}

	row, err = s.QueryFirst(ctx, "SELECT amount FROM sales WHERE amount > 100")
	if err != nil {
		t.Fatalf("empty query: %v", err)
	}
	if row.Found {
		t.Fatalf("row = %+v, want not found", row)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
