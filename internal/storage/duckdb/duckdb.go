//go:build duckdb

// Package duckdb registers the "duckdb" storage kind. It needs cgo, so it is
// only compiled with -tags duckdb.
package duckdb

import (
	"context"

	"querygrid/internal/storage"
	"querygrid/internal/storage/sqldb"

	_ "github.com/marcboeker/go-duckdb"
)

func init() {
	storage.Register("duckdb", func(ctx context.Context, cfg storage.Config) (storage.Database, error) {
		db, err := sqldb.Open("duckdb", cfg.DSN, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
}
