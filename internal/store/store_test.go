package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txrelay/internal/testutil"
	"github.com/roach88/txrelay/internal/tx"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.False(t, os.IsNotExist(err), "database file was not created")
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Create(context.Background(), []tx.Record{testutil.Record("t1", 1)}))
	_, err = s.Get(context.Background(), "t1")
	require.NoError(t, err)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Create(context.Background(), []tx.Record{testutil.Record("t1", 1)}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, tx.StatusPending, rec.Status)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"tx", "tx_dependency"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_RejectsInvalidSatisfiedStatus(t *testing.T) {
	_, err := Open(":memory:", WithSatisfiedStatuses("done"))
	assert.Error(t, err)

	_, err = Open(":memory:", WithSatisfiedStatuses())
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	_ = s.Close()
}

func TestPing(t *testing.T) {
	s, _ := createTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestPragmas(t *testing.T) {
	s, _ := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestMigrateToV1_AddsClaimColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// Build a version 0 database by hand, without the claim columns.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE tx (
			id TEXT PRIMARY KEY NOT NULL,
			raw BLOB NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		INSERT INTO tx VALUES ('old', x'01', 'pending', 1, 10, 10);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	cols, err := tableColumns(s.db, "tx")
	require.NoError(t, err)
	assert.True(t, cols["claimed_by"])
	assert.True(t, cols["claim_expires"])

	rec, err := s.NextReady(context.Background(), tx.StatusPending)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "old", rec.ID)
}
