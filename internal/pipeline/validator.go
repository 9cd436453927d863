package pipeline

import (
	"context"
	"errors"
)

// Validator checks a payload before it is broadcast.
// A returned error fails the transaction permanently.
type Validator interface {
	Validate(ctx context.Context, raw []byte) error
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(ctx context.Context, raw []byte) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, raw []byte) error {
	return f(ctx, raw)
}

// NonEmpty accepts any payload with at least one byte. Ledger-specific
// decoding belongs to a custom Validator.
var NonEmpty = ValidatorFunc(func(_ context.Context, raw []byte) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return nil
})
