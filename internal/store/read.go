package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

// readyFilter restricts tx rows (aliased t) to records in one of the given
// statuses with every dependency satisfied. Bind order: statuses, then
// satisfied statuses.
const readyFilter = `
	t.status IN (%s)
	AND NOT EXISTS (
		SELECT 1
		FROM tx_dependency d
		JOIN tx r ON r.id = d.required_id
		WHERE d.dependent_id = t.id
		  AND r.status NOT IN (%s)
	)`

// dispatchOrder is the total order used for dispatch selection.
const dispatchOrder = `t.priority ASC, t.created_at ASC, t.id COLLATE BINARY ASC`

// readyArgs renders readyFilter for statuses and returns its bind values.
func (s *Store) readyArgs(statuses []tx.Status) (string, []any) {
	statusMarks, args := statusArgs(statuses)
	satisfiedMarks, satisfied := statusArgs(s.satisfied)
	return fmt.Sprintf(readyFilter, statusMarks, satisfiedMarks), append(args, satisfied...)
}

// NextReady returns the highest-precedence record in the given status whose
// dependencies are all satisfied.
//
// Precedence is priority ascending, then created_at ascending, then id.
// Returns (nil, nil) when no record is eligible; that is not an error.
// Repeated calls without an intervening write return the same record.
func (s *Store) NextReady(ctx context.Context, status tx.Status) (*tx.Record, error) {
	return s.NextReadyIn(ctx, []tx.Status{status})
}

// NextReadyIn is NextReady over several statuses: the best-ranked ready
// record whose status is any of statuses.
func (s *Store) NextReadyIn(ctx context.Context, statuses []tx.Status) (*tx.Record, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("next ready: no statuses given")
	}
	filter, args := s.readyArgs(statuses)

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM tx t
		WHERE `+filter+`
		ORDER BY `+dispatchOrder+`
		LIMIT 1
	`, args...)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, asUnavailable("next ready", err)
	}

	if err := s.attachDependencies(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Claim atomically selects the record NextReady would return, skipping
// records another worker holds an unexpired claim on, and marks it claimed
// by worker until now+lease.
//
// The claim is released by the next Update of the record. Returns (nil, nil)
// when nothing is claimable.
func (s *Store) Claim(ctx context.Context, status tx.Status, worker string, lease time.Duration) (*tx.Record, error) {
	return s.ClaimIn(ctx, []tx.Status{status}, worker, lease)
}

// ClaimIn is Claim over several statuses, in the order of NextReadyIn.
func (s *Store) ClaimIn(ctx context.Context, statuses []tx.Status, worker string, lease time.Duration) (*tx.Record, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("claim: no statuses given")
	}
	if worker == "" {
		return nil, fmt.Errorf("claim: worker id is empty")
	}
	if lease <= 0 {
		return nil, fmt.Errorf("claim: lease must be positive")
	}

	now := s.now()
	filter, ready := s.readyArgs(statuses)

	args := []any{worker, toNanos(now.Add(lease))}
	args = append(args, ready...)
	args = append(args, toNanos(now))

	row := s.db.QueryRowContext(ctx, `
		UPDATE tx
		SET claimed_by = ?, claim_expires = ?
		WHERE id = (
			SELECT t.id
			FROM tx t
			WHERE `+filter+`
			  AND (t.claim_expires IS NULL OR t.claim_expires <= ?)
			ORDER BY `+dispatchOrder+`
			LIMIT 1
		)
		RETURNING `+recordColumns, args...)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, asUnavailable("claim", err)
	}

	if err := s.attachDependencies(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get retrieves a single record, including its dependencies.
// Fails with ErrCodeNotFound if the id is unknown.
func (s *Store) Get(ctx context.Context, id string) (tx.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM tx
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tx.Record{}, notFound(id)
	}
	if err != nil {
		return tx.Record{}, asUnavailable("get", err)
	}

	if err := s.attachDependencies(ctx, &rec); err != nil {
		return tx.Record{}, err
	}
	return rec, nil
}

// Dependencies returns the ids a record requires, in binary id order.
// Returns an empty slice (not nil) for a record without dependencies.
func (s *Store) Dependencies(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT required_id
		FROM tx_dependency
		WHERE dependent_id = ?
		ORDER BY required_id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, unavailable("query dependencies", id, err)
	}
	defer rows.Close()

	deps := []string{}
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, unavailable("scan dependency", id, err)
		}
		deps = append(deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate dependencies", id, err)
	}
	return deps, nil
}

// CountByStatus returns the number of records in each status.
// Every known status is present in the result, possibly with zero.
func (s *Store) CountByStatus(ctx context.Context) (map[tx.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM tx
		GROUP BY status
	`)
	if err != nil {
		return nil, unavailable("count by status", "", err)
	}
	defer rows.Close()

	counts := make(map[tx.Status]int, len(tx.Statuses))
	for _, st := range tx.Statuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, unavailable("scan count", "", err)
		}
		st, err := tx.ParseStatus(status)
		if err != nil {
			return nil, unavailable("corrupt record", "", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate counts", "", err)
	}
	return counts, nil
}

func (s *Store) attachDependencies(ctx context.Context, rec *tx.Record) error {
	deps, err := s.Dependencies(ctx, rec.ID)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		rec.Dependencies = deps
	}
	return nil
}

// asUnavailable wraps err as ErrCodeStorageUnavailable unless it already is a store error.
func asUnavailable(op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return unavailable(op, "", err)
}
