// Package livedata implements single-shot observable values: a value is
// produced once in the background and delivered on the main looper to
// observers whose lifecycle owner is active.
package livedata

import (
	"context"
	"sync"

	"poimap/internal/lifecycle"
	"poimap/internal/looper"
)

// LiveData holds at most one value. Observers get it exactly once while their
// owner is active; observers of a destroyed owner never get it.
type LiveData[T any] struct {
	main looper.Poster

	mu        sync.Mutex
	value     T
	set       bool
	observers []*observer[T]
}

type observer[T any] struct {
	data      *LiveData[T]
	owner     *lifecycle.Registry
	fn        func(T)
	delivered bool
	detached  bool
	unwatch   func()
}

// New returns an empty LiveData that delivers on main.
func New[T any](main looper.Poster) *LiveData[T] {
	return &LiveData[T]{main: main}
}

// Go runs fn on io and emits its result on main.
func Go[T any](ctx context.Context, main looper.Poster, io *Dispatcher, fn func(ctx context.Context) T) *LiveData[T] {
	ld := New[T](main)
	io.Go(ctx, func(ctx context.Context) {
		ld.Post(fn(ctx))
	})
	return ld
}

// Post hands v to the main looper. Only the first value is kept.
func (ld *LiveData[T]) Post(v T) {
	ld.main.Post(func() { ld.setValue(v) })
}

// Value returns the emitted value, if any.
func (ld *LiveData[T]) Value() (T, bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.value, ld.set
}

func (ld *LiveData[T]) setValue(v T) {
	ld.mu.Lock()
	if ld.set {
		ld.mu.Unlock()
		return
	}
	ld.value = v
	ld.set = true
	pending := append([]*observer[T](nil), ld.observers...)
	ld.mu.Unlock()

	for _, o := range pending {
		o.consider()
	}
}

// Observe registers fn for owner. Must be called on the main looper.
func (ld *LiveData[T]) Observe(owner *lifecycle.Registry, fn func(T)) {
	o := &observer[T]{data: ld, owner: owner, fn: fn}
	o.unwatch = owner.AddObserver(func(lifecycle.Event, lifecycle.State) { o.consider() })

	ld.mu.Lock()
	ld.observers = append(ld.observers, o)
	ld.mu.Unlock()

	o.consider()
}

// RemoveObservers drops every observer registered for owner; a value that has
// not been delivered to them yet never will be.
func (ld *LiveData[T]) RemoveObservers(owner *lifecycle.Registry) {
	ld.mu.Lock()
	var dropped []*observer[T]
	kept := ld.observers[:0]
	for _, o := range ld.observers {
		if o.owner == owner {
			dropped = append(dropped, o)
			continue
		}
		kept = append(kept, o)
	}
	ld.observers = kept
	ld.mu.Unlock()

	for _, o := range dropped {
		o.detached = true
		o.unwatch()
	}
}

// HasObservers reports whether any observer is still waiting.
func (ld *LiveData[T]) HasObservers() bool {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return len(ld.observers) > 0
}

func (o *observer[T]) consider() {
	if o.delivered || o.detached {
		return
	}
	state := o.owner.State()
	if state == lifecycle.Destroyed {
		o.detach()
		return
	}
	v, ok := o.data.Value()
	if !ok || !lifecycle.IsActive(state) {
		return
	}
	o.delivered = true
	o.detach()
	o.fn(v)
}

func (o *observer[T]) detach() {
	o.detached = true
	o.unwatch()
	ld := o.data
	ld.mu.Lock()
	defer ld.mu.Unlock()
	for i, other := range ld.observers {
		if other == o {
			ld.observers = append(ld.observers[:i], ld.observers[i+1:]...)
			return
		}
	}
}
