package mysql

import (
	"testing"

	"querygrid/internal/storage"
)

func TestOpen_DSNValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{"missing slash", "user:pass@tcp(localhost:3306)", true},
		{"well formed", "user:pass@tcp(127.0.0.1:1)/reports", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			db, err := Open(storage.Config{DSN: c.dsn})
			if (err != nil) != c.wantErr {
				t.Fatalf("Open(%q) err = %v, wantErr %v", c.dsn, err, c.wantErr)
			}
			if db != nil {
				db.Close()
			}
		})
	}
}
