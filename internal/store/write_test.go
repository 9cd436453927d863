package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txrelay/internal/testutil"
	"github.com/roach88/txrelay/internal/tx"
)

func TestCreate_SingleRecord(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	rec := testutil.Record("t1", 1)
	require.NoError(t, s.Create(ctx, []tx.Record{rec}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, rec.Raw, got.Raw)
	assert.Equal(t, tx.StatusPending, got.Status)
	assert.Equal(t, uint32(1), got.Priority)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	assert.Empty(t, got.Dependencies)
}

func TestCreate_EmptyBatch(t *testing.T) {
	s, _ := createTestStore(t)
	require.NoError(t, s.Create(context.Background(), nil))
	assert.Equal(t, 0, countRows(t, s, "tx"))
}

func TestCreate_StampsZeroTimestamps(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	rec := testutil.Record("t1", 1)
	rec.CreatedAt = time.Time{}
	rec.UpdatedAt = time.Time{}
	require.NoError(t, s.Create(ctx, []tx.Record{rec}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(testutil.Epoch))
	assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
}

func TestCreate_WithDependencyInSameBatch(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, []tx.Record{
		testutil.Record("t1", 1),
		testutil.Record("t2", 1, "t1"),
	}))

	deps, err := s.Dependencies(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, deps)
}

func TestCreate_WithDependencyInEarlierBatch(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("t1", 1))
	mustCreate(t, s, testutil.Record("t2", 0, "t1"))

	got, err := s.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.Dependencies)
}

// A missing dependency rejects the record and leaves no trace.
func TestCreate_MissingDependency(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	err := s.Create(ctx, []tx.Record{testutil.Record("t1", 1, "missing")})
	require.Error(t, err)
	assert.True(t, IsDependencyNotFound(err), "got %v", err)
	assert.Contains(t, err.Error(), "missing")

	_, err = s.Get(ctx, "t1")
	assert.True(t, IsNotFound(err))
}

// A failing edge rolls back every record and edge of the batch.
func TestCreate_AtomicRollback(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("base", 1))

	err := s.Create(ctx, []tx.Record{
		testutil.Record("a", 1, "base"),
		testutil.Record("b", 1, "a"),
		testutil.Record("c", 1, "b", "ghost"),
	})
	require.Error(t, err)
	assert.True(t, IsDependencyNotFound(err))

	assert.Equal(t, 1, countRows(t, s, "tx"))
	assert.Equal(t, 0, countRows(t, s, "tx_dependency"))
}

func TestCreate_ForwardReferenceInBatchFails(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.Create(context.Background(), []tx.Record{
		testutil.Record("t2", 1, "t1"),
		testutil.Record("t1", 1),
	})
	require.Error(t, err)
	assert.True(t, IsDependencyNotFound(err))
	assert.Equal(t, 0, countRows(t, s, "tx"))
}

func TestCreate_CircularBatchFails(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.Create(context.Background(), []tx.Record{
		testutil.Record("a", 1, "b"),
		testutil.Record("b", 1, "a"),
	})
	require.Error(t, err)
	assert.True(t, IsDependencyNotFound(err))
	assert.Equal(t, 0, countRows(t, s, "tx"))
}

func TestCreate_DuplicateIDAgainstStore(t *testing.T) {
	s, _ := createTestStore(t)

	mustCreate(t, s, testutil.Record("t1", 1))

	err := s.Create(context.Background(), []tx.Record{
		testutil.Record("t0", 1),
		testutil.Record("t1", 2),
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateID(err), "got %v", err)
	assert.True(t, IsRejection(err))

	assert.Equal(t, 1, countRows(t, s, "tx"), "t0 must be rolled back")
}

func TestCreate_DuplicateIDWithinBatch(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.Create(context.Background(), []tx.Record{
		testutil.Record("t1", 1),
		testutil.Record("t1", 2),
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateID(err))
	assert.Equal(t, 0, countRows(t, s, "tx"))
}

func TestCreate_InvalidRecord(t *testing.T) {
	s, _ := createTestStore(t)

	rec := testutil.Record("t1", 1)
	rec.Raw = nil

	err := s.Create(context.Background(), []tx.Record{testutil.Record("ok", 1), rec})
	require.Error(t, err)
	assert.True(t, IsInvalidRecord(err))
	assert.Equal(t, 0, countRows(t, s, "tx"))
}

func TestCreate_SelfDependencyRejected(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.Create(context.Background(), []tx.Record{testutil.Record("t1", 1, "t1")})
	require.Error(t, err)
	assert.True(t, IsInvalidRecord(err))
}

func TestCreate_CancelledContext(t *testing.T) {
	s, _ := createTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Create(ctx, []tx.Record{testutil.Record("t1", 1)})
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

// Validated records leave the pending queue.
func TestUpdate_ToValidated(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("t1", 1))

	rec, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	rec.Status = tx.StatusValidated
	require.NoError(t, s.Update(ctx, rec))

	next, err := s.NextReady(ctx, tx.StatusPending)
	require.NoError(t, err)
	assert.Nil(t, next)

	next, err = s.NextReady(ctx, tx.StatusValidated)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "t1", next.ID)
}

func TestUpdate_PersistsPayload(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("t1", 1))

	rec, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	rec.Raw = []byte("rewritten")
	require.NoError(t, s.Update(ctx, rec))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("rewritten"), got.Raw)
	assert.Equal(t, tx.StatusPending, got.Status)
}

func TestUpdate_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	err := s.Update(context.Background(), testutil.Record("nope", 1))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestUpdate_InvalidTransition(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("t1", 1))

	rec, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	rec.Status = tx.StatusPropagated

	err = s.Update(ctx, rec)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	setStatus(t, s, "t1", tx.StatusFailed)
	rec.Status = tx.StatusPending
	err = s.Update(ctx, rec)
	assert.True(t, IsInvalidTransition(err), "failed is terminal")
}

func TestUpdate_UnknownStatus(t *testing.T) {
	s, _ := createTestStore(t)
	mustCreate(t, s, testutil.Record("t1", 1))

	rec := testutil.Record("t1", 1)
	rec.Status = "archived"
	err := s.Update(context.Background(), rec)
	assert.True(t, IsInvalidRecord(err))
}

// updated_at never decreases, even when the wall clock does.
func TestUpdate_MonotonicUpdatedAt(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.RecordAt("t1", 1, testutil.Epoch.Add(time.Hour)))

	rec, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	created := rec.CreatedAt

	// Clock is behind created_at.
	clock.Set(testutil.Epoch)
	rec.Status = tx.StatusValidated
	require.NoError(t, s.Update(ctx, rec))

	afterFirst, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, afterFirst.UpdatedAt.Before(created))

	clock.Set(testutil.Epoch.Add(2 * time.Hour))
	rec.Status = tx.StatusPropagated
	require.NoError(t, s.Update(ctx, rec))

	afterSecond, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, afterSecond.UpdatedAt.After(afterFirst.UpdatedAt))

	clock.Set(testutil.Epoch)
	require.NoError(t, s.Update(ctx, afterSecond))

	afterThird, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, afterThird.UpdatedAt.Before(afterSecond.UpdatedAt))
}

func TestUpdateFrom_CompareAndSwap(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, testutil.Record("t1", 1))

	rec, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	rec.Status = tx.StatusValidated
	require.NoError(t, s.UpdateFrom(ctx, rec, tx.StatusPending))

	// A second worker racing on the same pending record loses.
	err = s.UpdateFrom(ctx, rec, tx.StatusPending)
	require.Error(t, err)
	assert.True(t, IsStatusConflict(err))
}

func TestFailFrom_FailsTransitiveDependents(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s,
		testutil.Record("root", 1),
		testutil.Record("child", 1, "root"),
		testutil.Record("grandchild", 1, "child"),
		testutil.Record("other", 1),
		testutil.Record("done", 1),
	)
	mustCreate(t, s, testutil.Record("mixed", 1, "other", "root"))

	root, err := s.Get(ctx, "root")
	require.NoError(t, err)
	failed, err := s.FailFrom(ctx, root, tx.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "grandchild", "mixed"}, failed)

	for _, id := range append(failed, "root") {
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tx.StatusFailed, rec.Status, id)
	}

	other, err := s.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, tx.StatusPending, other.Status)
}

func TestFailFrom_SkipsTerminalDependents(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s,
		testutil.Record("root", 1),
		testutil.Record("gone", 1, "root"),
		testutil.Record("waiting", 1, "root"),
	)
	setStatus(t, s, "gone", tx.StatusFailed)

	root, err := s.Get(ctx, "root")
	require.NoError(t, err)
	failed, err := s.FailFrom(ctx, root, tx.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"waiting"}, failed)
}

func TestFailFrom_CascadesAtomically(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s,
		testutil.Record("root", 1),
		testutil.Record("child", 1, "root"),
	)
	setStatus(t, s, "root", tx.StatusValidated)

	root, err := s.Get(ctx, "root")
	require.NoError(t, err)

	failed, err := s.FailFrom(ctx, root, tx.StatusValidated)
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, failed)

	got, err := s.Get(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, tx.StatusFailed, got.Status)

	child, err := s.Get(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, tx.StatusFailed, child.Status)
}

func TestFailFrom_ConflictLeavesDependents(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s,
		testutil.Record("root", 1),
		testutil.Record("child", 1, "root"),
	)

	root, err := s.Get(ctx, "root")
	require.NoError(t, err)

	_, err = s.FailFrom(ctx, root, tx.StatusValidated)
	require.Error(t, err)
	assert.True(t, IsStatusConflict(err))

	child, err := s.Get(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, tx.StatusPending, child.Status)
}
