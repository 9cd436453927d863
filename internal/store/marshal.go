package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

// recordColumns is the column list every record query selects, in scan order.
const recordColumns = "id, raw, status, priority, created_at, updated_at"

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans recordColumns into a Record.
// Dependencies are loaded separately.
//
// An unknown status is reported as corruption rather than defaulted.
func scanRecord(row rowScanner) (tx.Record, error) {
	var (
		rec       tx.Record
		status    string
		priority  int64
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(&rec.ID, &rec.Raw, &status, &priority, &createdAt, &updatedAt); err != nil {
		return tx.Record{}, err
	}

	st, err := tx.ParseStatus(status)
	if err != nil {
		return tx.Record{}, unavailable("corrupt record", rec.ID, err)
	}
	if priority < 0 || priority > int64(^uint32(0)) {
		return tx.Record{}, unavailable("corrupt record", rec.ID, fmt.Errorf("priority %d out of range", priority))
	}

	rec.Status = st
	rec.Priority = uint32(priority)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	return rec, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// statusArgs renders statuses as SQL placeholders and their bind values.
func statusArgs(statuses []tx.Status) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = st.String()
	}
	return strings.Join(marks, ", "), args
}
