// Package mysql registers the "mysql" storage kind using go-sql-driver/mysql.
package mysql

import (
	"context"
	"fmt"

	"querygrid/internal/storage"
	"querygrid/internal/storage/sqldb"

	"github.com/go-sql-driver/mysql"
)

// newDatabase is a test hook that points to Open by default.
var newDatabase = Open

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Database, error) {
		return newDatabase(cfg)
	})
}

// Open parses the DSN and opens a pool. parseTime is forced on so DATETIME
// columns arrive as time.Time rather than raw bytes.
func Open(cfg storage.Config) (storage.Database, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	db, err := sqldb.Open("mysql", mc.FormatDSN(), cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}
