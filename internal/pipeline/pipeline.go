package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Pipeline runs values through its stages in order.
type Pipeline[T any] struct {
	stages []Stage[T]
}

func NewPipeline[T any](stages ...Stage[T]) *Pipeline[T] {
	return &Pipeline[T]{stages: stages}
}

// Process applies the stages to every item received on in until in is closed
// or ctx is done.
func (p *Pipeline[T]) Process(ctx context.Context, in <-chan *T) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			p.Apply(ctx, item)
		}
	}
}

// Apply runs every stage on item. Step errors are logged and do not stop the
// item, except ErrSkip which ends it after the current stage. It reports
// whether the item went through all stages.
func (p *Pipeline[T]) Apply(ctx context.Context, item *T) bool {
	for _, stage := range p.stages {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			skipped bool
		)
		for _, step := range stage.steps {
			wg.Add(1)
			go func(step Step[T]) {
				defer wg.Done()
				err := step(ctx, item)
				if err == nil {
					return
				}
				if errors.Is(err, ErrSkip) {
					mu.Lock()
					skipped = true
					mu.Unlock()
					return
				}
				log.Printf("Step failed: %v", err)
			}(step)
		}
		wg.Wait()
		if skipped {
			return false
		}
	}
	return true
}
