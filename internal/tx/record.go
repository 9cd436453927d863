package tx

import (
	"errors"
	"fmt"
	"time"
)

// MaxIDLength bounds the identifier length accepted from clients.
const MaxIDLength = 128

// Record is a transaction held by the relay.
type Record struct {
	ID           string    `json:"id"`
	Raw          []byte    `json:"raw"`
	Status       Status    `json:"status"`
	Priority     uint32    `json:"priority"`
	Dependencies []string  `json:"dependencies,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPending builds a record as the ingress server creates it:
// status pending, created_at = updated_at = now.
func NewPending(id string, raw []byte, priority uint32, deps []string, now time.Time) Record {
	return Record{
		ID:           id,
		Raw:          raw,
		Status:       StatusPending,
		Priority:     priority,
		Dependencies: deps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the record invariants that can be verified without the store.
func (r Record) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id is empty"))
	}
	if len(r.ID) > MaxIDLength {
		errs = append(errs, fmt.Errorf("id exceeds %d bytes", MaxIDLength))
	}
	if len(r.Raw) == 0 {
		errs = append(errs, errors.New("raw payload is empty"))
	}
	if !r.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", r.Status))
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		errs = append(errs, errors.New("updated_at precedes created_at"))
	}

	seen := make(map[string]struct{}, len(r.Dependencies))
	for _, dep := range r.Dependencies {
		if dep == "" {
			errs = append(errs, errors.New("empty dependency id"))
			continue
		}
		if dep == r.ID {
			errs = append(errs, fmt.Errorf("record depends on itself"))
			continue
		}
		if _, dup := seen[dep]; dup {
			errs = append(errs, fmt.Errorf("dependency %q listed twice", dep))
			continue
		}
		seen[dep] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid record %q: %w", r.ID, errors.Join(errs...))
	}
	return nil
}

// HasDependencies reports whether the record waits on other transactions.
func (r Record) HasDependencies() bool {
	return len(r.Dependencies) > 0
}
