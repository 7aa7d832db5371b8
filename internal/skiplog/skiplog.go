// Package skiplog writes a CSV audit trail of queries that did not resolve
// to a value, one file per processed upload.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Header is the first row of every log file.
var Header = []string{"reason", "row", "column", "query", "detail"}

// Log appends unresolved-query records to a CSV file. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
	path    string
}

// Create creates dir (if needed) and a fresh log file named name.csv inside it.
func Create(dir, name string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("skiplog: create dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("skiplog: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("skiplog: header: %w", err)
	}
	return &Log{f: f, w: w, reasons: make(map[string]int), path: path}, nil
}

// Path returns the file location.
func (l *Log) Path() string { return l.path }

// Add records one unresolved query. row is the zero-based data row.
func (l *Log) Add(reason string, row int, column, query, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
	return l.w.Write([]string{reason, strconv.Itoa(row), column, query, detail})
}

// Counts returns a copy of the per-reason tallies.
func (l *Log) Counts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("skiplog: flush: %w", err)
	}
	return l.f.Close()
}
