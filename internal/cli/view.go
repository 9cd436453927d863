package cli

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

// TxView is the CLI rendering of a stored transaction.
type TxView struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Priority     uint32    `json:"priority"`
	Dependencies []string  `json:"dependencies"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Raw          string    `json:"raw"` // hex
}

func newTxView(rec tx.Record) TxView {
	deps := []string{}
	if rec.HasDependencies() {
		deps = rec.Dependencies
	}
	return TxView{
		ID:           rec.ID,
		Status:       rec.Status.String(),
		Priority:     rec.Priority,
		Dependencies: deps,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
		Raw:          hex.EncodeToString(rec.Raw),
	}
}

func (v TxView) String() string {
	deps := "-"
	if len(v.Dependencies) > 0 {
		deps = strings.Join(v.Dependencies, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "id:           %s\n", v.ID)
	fmt.Fprintf(&b, "status:       %s\n", v.Status)
	fmt.Fprintf(&b, "priority:     %d\n", v.Priority)
	fmt.Fprintf(&b, "dependencies: %s\n", deps)
	fmt.Fprintf(&b, "created_at:   %s\n", v.CreatedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "updated_at:   %s\n", v.UpdatedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "raw:          %s", v.Raw)
	return b.String()
}

// StatsView is the CLI rendering of store counts.
type StatsView struct {
	Counts map[tx.Status]int `json:"counts"`
	Total  int               `json:"total"`
}

func newStatsView(counts map[tx.Status]int) StatsView {
	v := StatsView{Counts: counts}
	for _, n := range counts {
		v.Total += n
	}
	return v
}

func (v StatsView) String() string {
	var b strings.Builder
	for _, s := range tx.Statuses {
		fmt.Fprintf(&b, "%-10s %d\n", s, v.Counts[s])
	}
	fmt.Fprintf(&b, "%-10s %d", "total", v.Total)
	return b.String()
}

// SubmitView reports an accepted submission.
type SubmitView struct {
	IDs []string `json:"ids"`
}

func (v SubmitView) String() string {
	return "submitted " + strings.Join(v.IDs, ", ")
}
