// Package mssql registers the "mssql" storage kind using the go-mssqldb
// driver through database/sql.
package mssql

import (
	"context"
	"fmt"

	"querygrid/internal/storage"
	"querygrid/internal/storage/sqldb"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// newDatabase is a test hook that points to Open by default.
var newDatabase = Open

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Database, error) {
		return newDatabase(cfg)
	})
}

// Open validates the DSN and opens a pool using the "sqlserver" driver.
func Open(cfg storage.Config) (storage.Database, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sqldb.Open("sqlserver", cfg.DSN, cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}
