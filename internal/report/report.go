// Package report persists run summaries in a bbolt file so operators can look
// up past uploads. Only metadata is stored, never grid contents.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("report not found")

var runsBucket = []byte("runs")

// Summary describes one processed upload.
type Summary struct {
	ID           string        `json:"id"`
	Filename     string        `json:"filename"`
	Format       string        `json:"format"`
	Fingerprint  string        `json:"fingerprint"`
	Bytes        int64         `json:"bytes"`
	Rows         int           `json:"rows"`
	Columns      int           `json:"columns"`
	TotalQueries int           `json:"total_queries"`
	Unresolved   []string      `json:"unresolved_queries"`
	Calculated   bool          `json:"calculated"`
	RulesApplied int           `json:"rules_applied"`
	RulesSkipped int           `json:"rules_skipped"`
	RulesFailed  int           `json:"rules_failed"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// Store is a bbolt-backed summary store. Keys are run IDs; IDs are expected
// to be time-ordered (UUIDv7) so key order is chronological.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report: init: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

// Put stores or replaces sum under sum.ID.
func (s *Store) Put(sum Summary) error {
	if sum.ID == "" {
		return errors.New("report: summary has no ID")
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(sum.ID), data)
	})
}

// Get returns the summary stored under id.
func (s *Store) Get(id string) (Summary, error) {
	var sum Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(runsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &sum)
	})
	return sum, err
}

// Recent returns up to n summaries, newest first.
func (s *Store) Recent(n int) ([]Summary, error) {
	out := []Summary{}
	if n <= 0 {
		return out, nil
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var sum Summary
			if err := json.Unmarshal(v, &sum); err != nil {
				return fmt.Errorf("report: decode %s: %w", k, err)
			}
			out = append(out, sum)
		}
		return nil
	})
	return out, err
}
