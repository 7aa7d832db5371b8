package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeDB is a minimal Database implementation for registry tests.
type fakeDB struct {
	closed bool
}

func (f *fakeDB) Acquire(ctx context.Context) (Session, error) { return nil, errors.New("not used") }
func (f *fakeDB) Ping(ctx context.Context) error               { return nil }
func (f *fakeDB) Close()                                       { f.closed = true }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding database.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake_ok"
	var gotDSN string
	Register(kind, func(ctx context.Context, cfg Config) (Database, error) {
		gotDSN = cfg.DSN
		return &fakeDB{}, nil
	})

	db, err := New(context.Background(), Config{Kind: "FAKE_OK", DSN: "x://y"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if db == nil {
		t.Fatal("New returned nil database")
	}
	if gotDSN != "x://y" {
		t.Fatalf("factory saw DSN %q", gotDSN)
	}

	found := false
	for _, k := range Kinds() {
		if k == kind {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in Kinds: %v", kind, Kinds())
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if !strings.Contains(err.Error(), "unsupported kind") {
		t.Fatalf("error %q does not mention unsupported kind", err)
	}
}

// TestNew_FactoryErrorWrapped ensures factory errors keep their identity.
func TestNew_FactoryErrorWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	Register("fake_err", func(ctx context.Context, cfg Config) (Database, error) {
		return nil, boom
	})

	_, err := New(context.Background(), Config{Kind: "fake_err"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
}
