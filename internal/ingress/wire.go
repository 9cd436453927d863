package ingress

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/txrelay/internal/tx"
)

type submitRequest struct {
	Transactions []submitTx `json:"transactions"`
}

type submitTx struct {
	ID           string   `json:"id,omitempty"`
	Raw          string   `json:"raw"`
	Priority     uint32   `json:"priority"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type submitResponse struct {
	SubmissionID string   `json:"submission_id"`
	IDs          []string `json:"ids"`
}

type txResponse struct {
	ID           string    `json:"id"`
	Status       tx.Status `json:"status"`
	Priority     uint32    `json:"priority"`
	Dependencies []string  `json:"dependencies"`
	Raw          string    `json:"raw"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type statsResponse struct {
	Counts map[tx.Status]int `json:"counts"`
	Total  int               `json:"total"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`

	// Rejected marks a batch that will fail again if resent unchanged.
	Rejected bool `json:"rejected,omitempty"`
}

// toRecord builds a pending record from a wire entry. A missing id is
// derived from the payload.
func (s submitTx) toRecord(now time.Time) (tx.Record, error) {
	if s.Raw == "" {
		return tx.Record{}, errors.New("raw is required")
	}
	raw, err := hex.DecodeString(s.Raw)
	if err != nil {
		return tx.Record{}, fmt.Errorf("raw is not valid hex: %w", err)
	}

	id := tx.NormalizeID(s.ID)
	if id == "" {
		id = tx.ContentID(raw)
	}

	var deps []string
	if len(s.Dependencies) > 0 {
		deps = make([]string, len(s.Dependencies))
		for i, dep := range s.Dependencies {
			deps[i] = tx.NormalizeID(dep)
		}
	}

	rec := tx.NewPending(id, raw, s.Priority, deps, now)
	if err := rec.Validate(); err != nil {
		return tx.Record{}, err
	}
	return rec, nil
}

func fromRecord(rec tx.Record) txResponse {
	deps := rec.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return txResponse{
		ID:           rec.ID,
		Status:       rec.Status,
		Priority:     rec.Priority,
		Dependencies: deps,
		Raw:          hex.EncodeToString(rec.Raw),
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
}
