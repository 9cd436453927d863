package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/txrelay/internal/testutil"
	"github.com/roach88/txrelay/internal/tx"
)

// createTestStore creates a new file-backed store with a ticking test clock.
func createTestStore(t *testing.T, opts ...Option) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewTickingClock(time.Millisecond)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// mustCreate inserts records and fails the test on error.
func mustCreate(t *testing.T, s *Store, records ...tx.Record) {
	t.Helper()
	if err := s.Create(context.Background(), records); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
}

// setStatus walks a record along the lifecycle to the target status.
func setStatus(t *testing.T, s *Store, id string, target tx.Status) {
	t.Helper()
	ctx := context.Background()
	path := map[tx.Status][]tx.Status{
		tx.StatusValidated:  {tx.StatusValidated},
		tx.StatusPropagated: {tx.StatusValidated, tx.StatusPropagated},
		tx.StatusFailed:     {tx.StatusFailed},
	}[target]

	for _, st := range path {
		rec, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", id, err)
		}
		rec.Status = st
		if err := s.Update(ctx, rec); err != nil {
			t.Fatalf("Update(%q -> %s) failed: %v", id, st, err)
		}
	}
}

// countRows returns the number of rows in a table.
func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}
