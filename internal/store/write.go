package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

// Create inserts a batch of records and their dependency edges atomically.
//
// Records are written in slice order. Each dependency must name a
// transaction that is already in the store when the edge is written, which
// includes records earlier in the same batch but not later ones. Any
// failure rolls back the whole batch:
//   - ErrCodeInvalidRecord: a record fails tx.Record.Validate
//   - ErrCodeDuplicateID: an id is already stored (or repeated in the batch)
//   - ErrCodeDependencyNotFound: a required id does not exist yet
//   - ErrCodeStorageUnavailable: the database failed
//
// Records with zero timestamps are stamped with the store clock.
// An empty batch is a no-op.
func (s *Store) Create(ctx context.Context, records []tx.Record) error {
	if len(records) == 0 {
		return nil
	}

	now := s.now()
	batch := make([]tx.Record, len(records))
	for i, rec := range records {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = rec.CreatedAt
		}
		if err := rec.Validate(); err != nil {
			return &Error{Code: ErrCodeInvalidRecord, Message: "record rejected", TxID: rec.ID, Err: err}
		}
		batch[i] = rec
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("create: begin tx", "", err)
	}
	defer dbTx.Rollback() // No-op if committed

	for _, rec := range batch {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO tx (id, raw, status, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			rec.Raw,
			rec.Status.String(),
			int64(rec.Priority),
			toNanos(rec.CreatedAt),
			toNanos(rec.UpdatedAt),
		)
		if err != nil {
			return classifyInsert("create: insert tx", rec.ID, err)
		}

		for _, requiredID := range rec.Dependencies {
			var exists bool
			err := dbTx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM tx WHERE id = ?)`, requiredID,
			).Scan(&exists)
			if err != nil {
				return unavailable("create: check dependency", rec.ID, err)
			}
			if !exists {
				return &Error{
					Code:    ErrCodeDependencyNotFound,
					Message: fmt.Sprintf("required transaction %q does not exist", requiredID),
					TxID:    rec.ID,
				}
			}

			_, err = dbTx.ExecContext(ctx, `
				INSERT INTO tx_dependency (dependent_id, required_id)
				VALUES (?, ?)
			`, rec.ID, requiredID)
			if err != nil {
				return classifyInsert("create: insert dependency", rec.ID, err)
			}
		}
	}

	if err := dbTx.Commit(); err != nil {
		return unavailable("create: commit", "", err)
	}
	return nil
}

// Update persists a new status and payload for an existing record.
//
// updated_at is stamped with the store clock, never moving backwards.
// Any claim on the record is released. Fails with ErrCodeNotFound if the id
// is unknown and ErrCodeInvalidTransition if the status change is not a
// permitted lifecycle edge.
func (s *Store) Update(ctx context.Context, rec tx.Record) error {
	return s.update(ctx, rec, nil)
}

// UpdateFrom is Update guarded by a compare-and-swap on the current status.
// Fails with ErrCodeStatusConflict when the stored status is not expected,
// which means another worker already moved the record.
func (s *Store) UpdateFrom(ctx context.Context, rec tx.Record, expected tx.Status) error {
	return s.update(ctx, rec, &expected)
}

func (s *Store) update(ctx context.Context, rec tx.Record, expected *tx.Status) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("update: begin tx", rec.ID, err)
	}
	defer dbTx.Rollback()

	if err := s.updateTx(ctx, dbTx, rec, expected); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return unavailable("update: commit", rec.ID, err)
	}
	return nil
}

// FailFrom moves a record from expected to failed and fails all of its
// pending or validated transitive dependents, in one transaction.
// Returns the dependent ids that were failed.
func (s *Store) FailFrom(ctx context.Context, rec tx.Record, expected tx.Status) ([]string, error) {
	rec.Status = tx.StatusFailed

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("fail: begin tx", rec.ID, err)
	}
	defer dbTx.Rollback()

	if err := s.updateTx(ctx, dbTx, rec, &expected); err != nil {
		return nil, err
	}
	failed, err := s.failDependentsTx(ctx, dbTx, rec.ID)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, unavailable("fail: commit", rec.ID, err)
	}
	return failed, nil
}

func (s *Store) updateTx(ctx context.Context, dbTx *sql.Tx, rec tx.Record, expected *tx.Status) error {
	if !rec.Status.Valid() {
		return &Error{Code: ErrCodeInvalidRecord, Message: fmt.Sprintf("unknown status %q", rec.Status), TxID: rec.ID}
	}
	if len(rec.Raw) == 0 {
		return &Error{Code: ErrCodeInvalidRecord, Message: "raw payload is empty", TxID: rec.ID}
	}

	var (
		current   string
		updatedAt int64
	)
	err := dbTx.QueryRowContext(ctx,
		`SELECT status, updated_at FROM tx WHERE id = ?`, rec.ID,
	).Scan(&current, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(rec.ID)
	}
	if err != nil {
		return unavailable("update: read current", rec.ID, err)
	}

	from, err := tx.ParseStatus(current)
	if err != nil {
		return unavailable("corrupt record", rec.ID, err)
	}
	if expected != nil && from != *expected {
		return &Error{
			Code:    ErrCodeStatusConflict,
			Message: fmt.Sprintf("status is %s, expected %s", from, *expected),
			TxID:    rec.ID,
		}
	}
	if !tx.CanTransition(from, rec.Status) {
		return &Error{
			Code:    ErrCodeInvalidTransition,
			Message: fmt.Sprintf("cannot move from %s to %s", from, rec.Status),
			TxID:    rec.ID,
		}
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE tx
		SET raw = ?, status = ?, updated_at = ?, claimed_by = NULL, claim_expires = NULL
		WHERE id = ?
	`,
		rec.Raw,
		rec.Status.String(),
		stamp(s.now(), updatedAt),
		rec.ID,
	)
	if err != nil {
		return unavailable("update: write", rec.ID, err)
	}
	return nil
}

// failDependentsTx marks every pending or validated transitive dependent of
// id as failed. Their dependencies can no longer be satisfied. Returns the
// failed ids in binary id order.
func (s *Store) failDependentsTx(ctx context.Context, dbTx *sql.Tx, id string) ([]string, error) {
	rows, err := dbTx.QueryContext(ctx, `
		WITH RECURSIVE dependents(id) AS (
			SELECT dependent_id FROM tx_dependency WHERE required_id = ?
			UNION
			SELECT d.dependent_id
			FROM tx_dependency d
			JOIN dependents ON d.required_id = dependents.id
		)
		SELECT t.id, t.updated_at
		FROM tx t
		JOIN dependents ON dependents.id = t.id
		WHERE t.status IN (?, ?)
		ORDER BY t.id COLLATE BINARY ASC
	`, id, tx.StatusPending.String(), tx.StatusValidated.String())
	if err != nil {
		return nil, unavailable("fail dependents: query", id, err)
	}

	type victim struct {
		id        string
		updatedAt int64
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.updatedAt); err != nil {
			rows.Close()
			return nil, unavailable("fail dependents: scan", id, err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("fail dependents: iterate", id, err)
	}
	rows.Close()

	now := s.now()
	failed := make([]string, 0, len(victims))
	for _, v := range victims {
		_, err := dbTx.ExecContext(ctx, `
			UPDATE tx
			SET status = ?, updated_at = ?, claimed_by = NULL, claim_expires = NULL
			WHERE id = ?
		`, tx.StatusFailed.String(), stamp(now, v.updatedAt), v.id)
		if err != nil {
			return nil, unavailable("fail dependents: write", v.id, err)
		}
		failed = append(failed, v.id)
	}
	return failed, nil
}

// stamp returns now as unix nanos, clamped so it never precedes prev.
func stamp(now time.Time, prev int64) int64 {
	n := toNanos(now)
	if n < prev {
		return prev
	}
	return n
}
