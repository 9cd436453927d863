// Package peer is the boundary between the dispatch pipeline and the ledger
// peer network.
//
// The pipeline depends only on Broadcaster. Failures are reported as
// *PropagationError classified Transient (worth retrying) or Permanent (the
// network will never accept the payload). Gossip is the libp2p gossipsub
// implementation used by the node.
package peer

import (
	"context"
	"errors"
	"fmt"
)

// Broadcaster hands a payload to the peer network.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) error
}

// Func adapts a plain function to Broadcaster.
type Func func(ctx context.Context, payload []byte) error

// Broadcast calls f.
func (f Func) Broadcast(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Kind classifies a propagation failure.
type Kind int

const (
	// KindTransient failures may succeed on a later attempt
	// (no peers, timeout, connection refused).
	KindTransient Kind = iota + 1

	// KindPermanent failures will never succeed (payload rejected).
	KindPermanent
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PropagationError is a classified broadcast failure.
type PropagationError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *PropagationError) Error() string {
	return fmt.Sprintf("%s propagation error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PropagationError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &PropagationError{Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	return &PropagationError{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err is classified permanent.
// Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	var pe *PropagationError
	if errors.As(err, &pe) {
		return pe.Kind == KindPermanent
	}
	return false
}
