package tx

import "fmt"

// Status is the lifecycle stage of a Record.
//
// The text form is what the store persists. It is part of the on-disk format
// and must not change without a schema migration.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidated  Status = "validated"
	StatusPropagated Status = "propagated"
	StatusFailed     Status = "failed"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusValidated, StatusPropagated, StatusFailed}

// ParseStatus decodes the persisted text form of a status.
// Unknown text is an error; callers must not fall back to a default.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusValidated, StatusPropagated, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusPropagated || s == StatusFailed
}

// CanTransition reports whether a record may move from one status to another.
//
// Permitted edges: pending->validated, validated->propagated, any
// non-terminal status -> failed. Re-writing the same status is allowed so
// the payload can be updated in place.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch {
	case from == StatusPending && to == StatusValidated:
		return true
	case from == StatusValidated && to == StatusPropagated:
		return true
	case to == StatusFailed:
		return !from.Terminal()
	}
	return false
}
