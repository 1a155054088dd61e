// Package locationsvc delivers location fixes to subscribers on the main
// looper, at the cadence each subscriber asked for.
package locationsvc

import (
	"fmt"
	"time"

	"poimap/internal/models"
)

// Priority trades accuracy against power use.
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPowerAccuracy
	PriorityLowPower
	PriorityNoPower
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high-accuracy"
	case PriorityBalancedPowerAccuracy:
		return "balanced"
	case PriorityLowPower:
		return "low-power"
	case PriorityNoPower:
		return "no-power"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Request describes how often a subscriber wants updates. Fixes arriving
// faster than FastestInterval are batched and flushed every Interval; a batch
// is never held longer than MaxWaitTime.
type Request struct {
	Interval        time.Duration
	FastestInterval time.Duration
	MaxWaitTime     time.Duration
	Priority        Priority
}

// DefaultRequest asks for a high-accuracy fix every 30 seconds, batched for
// up to two minutes.
func DefaultRequest() Request {
	return Request{
		Interval:        30 * time.Second,
		FastestInterval: 30 * time.Second,
		MaxWaitTime:     2 * time.Minute,
		Priority:        PriorityHighAccuracy,
	}
}

func (r Request) validate() (Request, error) {
	if r.Interval <= 0 {
		return r, fmt.Errorf("interval must be positive, got %s", r.Interval)
	}
	if r.FastestInterval <= 0 || r.FastestInterval > r.Interval {
		r.FastestInterval = r.Interval
	}
	if r.MaxWaitTime < r.Interval {
		r.MaxWaitTime = r.Interval
	}
	return r, nil
}

// Result is one delivery: the fixes gathered since the previous one, oldest
// first.
type Result struct {
	Locations []models.Fix
}

// LastLocation returns the newest fix of the batch, or nil.
func (r Result) LastLocation() *models.Fix {
	if len(r.Locations) == 0 {
		return nil
	}
	last := r.Locations[len(r.Locations)-1]
	return &last
}

// Callback receives location results on the main looper.
type Callback func(Result)

// Subscription is an active RequestUpdates registration.
type Subscription interface {
	Remove()
}

// Client is what the activity needs from a location provider. Callbacks run
// on the main looper.
type Client interface {
	// LastLocation calls fn with the most recent fix, or nil if none is known.
	LastLocation(fn func(*models.Fix))
	RequestUpdates(req Request, cb Callback) (Subscription, error)
}
