// Package looper provides the single "main" goroutine on which every map and
// lifecycle mutation runs. Work from other goroutines is handed over with Post.
package looper

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrStopped is returned when work is handed to a looper that has quit.
var ErrStopped = errors.New("looper stopped")

// Poster accepts work for the main goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Looper runs posted tasks one at a time on the goroutine that called Run.
type Looper struct {
	tasks    chan func()
	doneChan chan struct{}
	once     sync.Once
}

// New returns a looper whose queue holds buffer tasks.
func New(buffer int) *Looper {
	return &Looper{
		tasks:    make(chan func(), buffer),
		doneChan: make(chan struct{}),
	}
}

// Post queues fn. It returns false if the looper has already quit.
func (l *Looper) Post(fn func()) bool {
	select {
	case <-l.doneChan:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.doneChan:
		return false
	}
}

// Sync runs fn on the looper and waits for it to return.
func (l *Looper) Sync(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.doneChan:
		return ErrStopped
	}
}

// Run executes queued work in order until ctx is cancelled or Quit is called.
func (l *Looper) Run(ctx context.Context) {
	defer l.Quit()
	for {
		select {
		case <-ctx.Done():
			log.Println("Context canceled, main looper exiting.")
			return
		case <-l.doneChan:
			return
		case fn := <-l.tasks:
			l.execute(fn)
		}
	}
}

func (l *Looper) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered panic on main looper: %v", r)
		}
	}()
	fn()
}

// Quit stops the looper. Pending work is discarded.
func (l *Looper) Quit() {
	l.once.Do(func() { close(l.doneChan) })
}

// Done is closed once the looper has quit.
func (l *Looper) Done() <-chan struct{} {
	return l.doneChan
}
