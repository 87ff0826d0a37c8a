// Package decompose provides the collaborators that split a task's text into
// ordered sub-steps.
package decompose

import (
	"context"
	"errors"
)

// ErrInvalidResponse reports a decomposition service reply that does not
// match the expected shape.
var ErrInvalidResponse = errors.New("decompose: invalid response")

// Decomposer splits a task description into ordered sub-steps. Returning no
// steps and a nil error means there is nothing to apply.
type Decomposer interface {
	Decompose(ctx context.Context, text string) ([]string, error)
}

// Nop is the default Decomposer. It never produces steps.
type Nop struct{}

// Decompose implements Decomposer.
func (Nop) Decompose(context.Context, string) ([]string, error) {
	return nil, nil
}

// Func adapts a plain function to the Decomposer interface.
type Func func(ctx context.Context, text string) ([]string, error)

// Decompose implements Decomposer.
func (f Func) Decompose(ctx context.Context, text string) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, text)
}
