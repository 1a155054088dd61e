// Package lifecycle tracks the lifecycle of the map activity and of the
// components it owns, and lets observers react to each transition.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is a lifecycle state.
type State int

const (
	Initialized State = iota
	Created
	Started
	Resumed
	Paused
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Created:
		return "created"
	case Started:
		return "started"
	case Resumed:
		return "resumed"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsActive reports whether an owner in state s is visible and should receive
// deliveries.
func IsActive(s State) bool {
	return s == Started || s == Resumed || s == Paused
}

// Event moves a Registry between states.
type Event int

const (
	OnCreate Event = iota
	OnStart
	OnResume
	OnPause
	OnStop
	OnDestroy
)

func (e Event) String() string {
	switch e {
	case OnCreate:
		return "create"
	case OnStart:
		return "start"
	case OnResume:
		return "resume"
	case OnPause:
		return "pause"
	case OnStop:
		return "stop"
	case OnDestroy:
		return "destroy"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type transition struct {
	from  State
	event Event
}

var transitions = map[transition]State{
	{Initialized, OnCreate}: Created,
	{Created, OnStart}:      Started,
	{Started, OnResume}:     Resumed,
	{Resumed, OnPause}:      Paused,
	{Paused, OnResume}:      Resumed,
	{Paused, OnStop}:        Stopped,
	{Started, OnStop}:       Stopped,
	{Stopped, OnStart}:      Started,
	{Stopped, OnDestroy}:    Destroyed,
	{Created, OnDestroy}:    Destroyed,
}

// Observer is notified after every successful transition.
type Observer func(event Event, state State)

// Registry is a lifecycle state machine. It is safe for concurrent use;
// observers are called without the lock held.
type Registry struct {
	mu        sync.Mutex
	state     State
	nextID    int
	observers map[int]Observer
	order     []int
}

// NewRegistry returns a registry in the Initialized state.
func NewRegistry() *Registry {
	return &Registry{observers: make(map[int]Observer)}
}

// State returns the current state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Handle applies event and notifies observers.
func (r *Registry) Handle(event Event) error {
	r.mu.Lock()
	next, ok := transitions[transition{from: r.state, event: event}]
	if !ok {
		from := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	r.state = next
	observers := make([]Observer, 0, len(r.order))
	for _, id := range r.order {
		if o, ok := r.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	r.mu.Unlock()

	for _, o := range observers {
		o(event, next)
	}
	return nil
}

// AddObserver registers o and returns a function that removes it.
func (r *Registry) AddObserver(o Observer) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.observers[id] = o
	r.order = append(r.order, id)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.observers[id]; !ok {
			return
		}
		delete(r.observers, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}
