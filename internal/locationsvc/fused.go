package locationsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"poimap/internal/looper"
	"poimap/internal/models"
	"poimap/internal/pipeline"
)

// ErrClosed is returned by Push once the client has stopped.
var ErrClosed = errors.New("location client closed")

// FixRecorder persists accepted fixes.
type FixRecorder interface {
	RecordFix(ctx context.Context, fix models.Fix) error
}

// FusedClient merges fixes pushed from any number of sources (message bus,
// HTTP, simulation) and fans them out to subscriptions.
type FusedClient struct {
	main     looper.Poster
	recorder FixRecorder
	in       chan *models.Fix
	doneChan chan struct{}
	once     sync.Once
	pipeline *pipeline.Pipeline[models.Fix]

	mu   sync.Mutex
	last *models.Fix
	subs map[*subscription]struct{}
}

// NewFusedClient returns a client that delivers fixes on main. recorder may be nil.
func NewFusedClient(main looper.Poster, recorder FixRecorder) *FusedClient {
	c := &FusedClient{
		main:     main,
		recorder: recorder,
		in:       make(chan *models.Fix, 16),
		doneChan: make(chan struct{}),
		subs:     make(map[*subscription]struct{}),
	}
	c.pipeline = pipeline.NewPipeline(
		pipeline.NewStage(normalize),
		pipeline.NewStage(validate),
		pipeline.NewStage(c.record, c.fanOut),
	)
	return c
}

// Push hands a fix to the client.
func (c *FusedClient) Push(ctx context.Context, fix models.Fix) error {
	select {
	case <-c.doneChan:
		return ErrClosed
	default:
	}
	select {
	case c.in <- &fix:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.doneChan:
		return ErrClosed
	}
}

// Ingest pushes every fix received on fixes until the channel closes or ctx
// is done.
func (c *FusedClient) Ingest(ctx context.Context, fixes <-chan models.Fix) {
	for fix := range fixes {
		if err := c.Push(ctx, fix); err != nil {
			log.Printf("Stopping fix ingestion: %v", err)
			return
		}
	}
}

// Run processes pushed fixes until ctx is done, then removes every
// subscription.
func (c *FusedClient) Run(ctx context.Context) {
	log.Println("Starting location client loop...")
	c.pipeline.Process(ctx, c.in)
	c.once.Do(func() { close(c.doneChan) })

	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.Remove()
	}
	log.Println("Location client stopped.")
}

// LastLocation calls fn on the main looper with the most recent fix, or nil.
func (c *FusedClient) LastLocation(fn func(*models.Fix)) {
	c.mu.Lock()
	var last *models.Fix
	if c.last != nil {
		cp := *c.last
		last = &cp
	}
	c.mu.Unlock()
	c.main.Post(func() { fn(last) })
}

// RequestUpdates subscribes cb to fixes matching req.
func (c *FusedClient) RequestUpdates(req Request, cb Callback) (Subscription, error) {
	req, err := req.validate()
	if err != nil {
		return nil, err
	}
	select {
	case <-c.doneChan:
		return nil, ErrClosed
	default:
	}

	s := &subscription{
		client:   c,
		req:      req,
		cb:       cb,
		stopChan: make(chan struct{}),
	}
	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go s.flushLoop()
	log.Printf("Location updates requested: interval=%s fastest=%s priority=%s", req.Interval, req.FastestInterval, req.Priority)
	return s, nil
}

func normalize(_ context.Context, fix *models.Fix) error {
	if fix.ID == "" {
		fix.ID = uuid.NewString()
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now().UTC()
	}
	return nil
}

func validate(_ context.Context, fix *models.Fix) error {
	if err := fix.Validate(); err != nil {
		log.Printf("Dropping fix %s: %v", fix.ID, err)
		return fmt.Errorf("%w: %v", pipeline.ErrSkip, err)
	}
	return nil
}

func (c *FusedClient) record(ctx context.Context, fix *models.Fix) error {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.RecordFix(ctx, *fix)
}

func (c *FusedClient) fanOut(_ context.Context, fix *models.Fix) error {
	c.mu.Lock()
	cp := *fix
	c.last = &cp
	subs := make([]*subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.offer(cp)
	}
	return nil
}

type subscription struct {
	client   *FusedClient
	req      Request
	cb       Callback
	removed  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	pending      []models.Fix
	oldest       time.Time
	lastDelivery time.Time
}

func (s *subscription) offer(fix models.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if len(s.pending) == 0 {
		s.oldest = now
	}
	s.pending = append(s.pending, fix)
	if now.Sub(s.lastDelivery) >= s.req.FastestInterval || now.Sub(s.oldest) >= s.req.MaxWaitTime {
		s.flushLocked(now)
	}
}

func (s *subscription) flushLoop() {
	ticker := time.NewTicker(s.req.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if len(s.pending) > 0 {
				s.flushLocked(now)
			}
			s.mu.Unlock()
		}
	}
}

func (s *subscription) flushLocked(now time.Time) {
	batch := s.pending
	s.pending = nil
	s.lastDelivery = now
	s.client.main.Post(func() {
		if s.removed.Load() {
			return
		}
		s.cb(Result{Locations: batch})
	})
}

// Remove stops deliveries. Batches already handed to the looper are dropped.
func (s *subscription) Remove() {
	s.stopOnce.Do(func() {
		s.removed.Store(true)
		close(s.stopChan)
		s.client.mu.Lock()
		delete(s.client.subs, s)
		s.client.mu.Unlock()
	})
}
