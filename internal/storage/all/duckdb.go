//go:build duckdb

package all

import _ "querygrid/internal/storage/duckdb"
