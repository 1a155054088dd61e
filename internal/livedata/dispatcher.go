package livedata

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Dispatcher runs blocking work (network, decoding) off the main looper with
// a bound on how many jobs run at once.
type Dispatcher struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewDispatcher returns a dispatcher running at most maxConcurrent jobs.
func NewDispatcher(maxConcurrent int64) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Go schedules fn. If ctx ends before a slot frees up, fn never runs.
func (d *Dispatcher) Go(ctx context.Context, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			log.Printf("Dropping background job: %v", err)
			return
		}
		defer d.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until every scheduled job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
