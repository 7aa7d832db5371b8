// Package sqlite registers the "sqlite" storage kind backed by the pure-Go
// modernc.org/sqlite driver. It is the backend used by hermetic tests and is
// handy for running reports against a local database file.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"querygrid/internal/storage"
	"querygrid/internal/storage/sqldb"

	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3
)

// DriverName is the database/sql driver name registered by modernc.org/sqlite.
const DriverName = "sqlite"

// newDatabase is a test hook that points to Open by default.
var newDatabase = Open

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Database, error) {
		return newDatabase(cfg)
	})
}

// Open opens a SQLite pool. The DSN is a file path or a "file:" URI, e.g.:
//
//	"reports.db"
//	"file:reports.db?_pragma=busy_timeout(5000)"
func Open(cfg storage.Config) (storage.Database, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sqldb.Open(DriverName, cfg.DSN, cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}
