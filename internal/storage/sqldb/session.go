package sqldb

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"querygrid/internal/storage"
)

// Session is a storage.Session over one pinned connection.
type Session struct {
	name     string
	conn     connCore
	released bool
}

var _ storage.Session = (*Session)(nil)

// NewSession wraps conn. name prefixes error messages (usually the driver).
func NewSession(name string, conn connCore) *Session {
	return &Session{name: name, conn: conn}
}

// Ping checks the pinned connection.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: ping: %w", s.name, err)
	}
	return nil
}

// QueryFirst runs q in a fresh transaction and returns the first column of
// the first row. The transaction is committed after the read and rolled
// back on any failure.
func (s *Session) QueryFirst(ctx context.Context, q string) (storage.Row, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storage.Row{}, fmt.Errorf("%s: begin: %w", s.name, err)
	}

	row, err := firstCell(ctx, tx, q)
	if err != nil {
		_ = tx.Rollback()
		return storage.Row{}, fmt.Errorf("%s: query: %w", s.name, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Row{}, fmt.Errorf("%s: commit: %w", s.name, err)
	}
	return row, nil
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	_ = s.conn.Close()
}

// firstCell reads only row 0, column 0. Remaining rows are discarded when
// the result set is closed.
func firstCell(ctx context.Context, tx txCore, q string) (storage.Row, error) {
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return storage.Row{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return storage.Row{}, err
	}
	typeName := ""
	if len(cols) > 0 {
		typeName = rows.DatabaseTypeName(0)
	}
	if !rows.Next() {
		return storage.Row{}, rows.Err()
	}
	if len(cols) == 0 {
		return storage.Row{}, nil
	}

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return storage.Row{}, err
	}
	if err := rows.Close(); err != nil {
		return storage.Row{}, err
	}
	return storage.Row{Found: true, Value: numericBytes(dest[0], typeName)}, nil
}

// numericTypes are the column types whose values some drivers hand back as
// text bytes: mysql over the text protocol, mssql for DECIMAL and MONEY.
var numericTypes = map[string]bool{
	"BIGINT": true, "DEC": true, "DECIMAL": true, "DOUBLE": true, "FIXED": true,
	"FLOAT": true, "INT": true, "INTEGER": true, "MEDIUMINT": true, "MONEY": true,
	"NUMERIC": true, "REAL": true, "SMALLINT": true, "SMALLMONEY": true, "TINYINT": true,
}

// numericBytes parses v as an exact number when it is a byte slice from a
// numeric column, so it reaches the grid as a Number rather than Text.
// Anything else is returned unchanged.
func numericBytes(v any, typeName string) any {
	b, ok := v.([]byte)
	if !ok || !isNumericType(typeName) {
		return v
	}
	r, ok := new(big.Rat).SetString(strings.TrimSpace(string(b)))
	if !ok {
		return v
	}
	return r
}

// isNumericType normalizes names such as "UNSIGNED BIGINT" or
// "DECIMAL(18,2)" before the lookup.
func isNumericType(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "UNSIGNED ")
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return numericTypes[strings.TrimSpace(name)]
}
