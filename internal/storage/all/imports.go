// Package all wires the built-in storage backends into the storage factory.
//
// Importing it (as a blank import) runs each backend's init, which registers
// its kind with storage.Register. After that the rest of the program opens a
// database with storage.New and never imports a backend directly:
//
//	import _ "querygrid/internal/storage/all"
//
//	db, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//
// The duckdb backend needs cgo and is added by building with -tags duckdb.
package all

import (
	_ "querygrid/internal/storage/mssql"
	_ "querygrid/internal/storage/mysql"
	_ "querygrid/internal/storage/postgres"
	_ "querygrid/internal/storage/sqlite"
)
