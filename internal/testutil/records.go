package testutil

import (
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

// Record builds a pending record with a payload derived from id.
func Record(id string, priority uint32, deps ...string) tx.Record {
	return tx.NewPending(id, []byte("raw-"+id), priority, deps, Epoch)
}

// RecordAt is Record with an explicit creation time.
func RecordAt(id string, priority uint32, createdAt time.Time, deps ...string) tx.Record {
	return tx.NewPending(id, []byte("raw-"+id), priority, deps, createdAt)
}
