// Package pipeline runs a sequence of stages over items flowing through a
// channel. Steps inside a stage run in parallel; stages run one after another.
package pipeline

import (
	"context"
	"errors"
)

// ErrSkip returned by a step stops the remaining stages for the current item.
var ErrSkip = errors.New("skip item")

// Step processes a single item in place. Steps of one stage run concurrently
// on the same item and must not write the same fields.
type Step[T any] func(ctx context.Context, item *T) error

// Stage groups steps that may run in parallel for one item.
type Stage[T any] struct {
	steps []Step[T]
}

func NewStage[T any](steps ...Step[T]) Stage[T] {
	return Stage[T]{steps: steps}
}
