/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/musicranker/mbproxy/log"
)

// DefaultMinInterval is a spacing that keeps a client below MusicBrainz' limit of one request per second.
const DefaultMinInterval = 1100 * time.Millisecond

// DefaultBacklogWarnThreshold is a queue depth starting from which the scheduler warns about a growing backlog.
const DefaultBacklogWarnThreshold = 10

const backlogWarnInterval = 10 * time.Second

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("scheduler is closed")

// Descriptor describes a request to the upstream. It is never modified by the scheduler.
type Descriptor struct {
	Method string
	// URL is either absolute or relative to the base URL of the transport.
	URL    string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Body is a raw upstream response payload.
type Body []byte

// Transport executes a single request.
type Transport interface {
	Do(ctx context.Context, desc Descriptor) (Body, error)
}

// TransportFunc is an adapter to allow the use of ordinary functions as Transport.
type TransportFunc func(ctx context.Context, desc Descriptor) (Body, error)

// Do calls f(ctx, desc).
func (f TransportFunc) Do(ctx context.Context, desc Descriptor) (Body, error) {
	return f(ctx, desc)
}

// Options represents options for the Scheduler.
type Options struct {
	// MinInterval is a minimal time between the end of one dispatch and the start of the next one.
	// DefaultMinInterval is used if it's zero.
	MinInterval time.Duration

	// Name identifies the scheduler in logs and metrics (e.g. "musicbrainz").
	Name string

	Logger           log.FieldLogger
	MetricsCollector MetricsCollector

	// BacklogWarnThreshold is a queue depth that triggers a (throttled) warning.
	// DefaultBacklogWarnThreshold is used if it's zero, negative value disables warnings.
	BacklogWarnThreshold int

	// Now and TimeAfter may be hooked in tests. They default to time.Now and time.After.
	Now       func() time.Time
	TimeAfter func(d time.Duration) <-chan time.Time
}

type result struct {
	body Body
	err  error
}

type pendingRequest struct {
	ctx        context.Context
	desc       Descriptor
	enqueuedAt time.Time
	elem       *list.Element
	result     chan result
}

// Scheduler executes submitted requests strictly one at a time in FIFO order.
// The drain goroutine is started on demand and exits when the queue becomes empty.
type Scheduler struct {
	transport            Transport
	minInterval          time.Duration
	name                 string
	logger               log.FieldLogger
	metrics              MetricsCollector
	backlogWarnThreshold int
	backlogWarn          rate.Sometimes
	now                  func() time.Time
	timeAfter            func(d time.Duration) <-chan time.Time

	mu           sync.Mutex
	queue        *list.List
	draining     bool
	closed       bool
	lastDispatch time.Time
}

// New creates a new Scheduler.
func New(transport Transport, opts Options) *Scheduler {
	if opts.MinInterval == 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.BacklogWarnThreshold == 0 {
		opts.BacklogWarnThreshold = DefaultBacklogWarnThreshold
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TimeAfter == nil {
		opts.TimeAfter = time.After
	}
	return &Scheduler{
		transport:            transport,
		minInterval:          opts.MinInterval,
		name:                 opts.Name,
		logger:               log.NewPrefixedLogger(opts.Logger, fmt.Sprintf("scheduler[%s]: ", opts.Name)),
		metrics:              opts.MetricsCollector,
		backlogWarnThreshold: opts.BacklogWarnThreshold,
		backlogWarn:          rate.Sometimes{Interval: backlogWarnInterval},
		now:                  opts.Now,
		timeAfter:            opts.TimeAfter,
		queue:                list.New(),
	}
}

// Name returns the name of the scheduler.
func (s *Scheduler) Name() string {
	return s.name
}

// Submit enqueues the request and blocks until it's executed.
// The transport's result is returned as is, no retries are made.
// If ctx is done while the request is still queued, ctx.Err() is returned and the request is never dispatched.
func (s *Scheduler) Submit(ctx context.Context, desc Descriptor) (Body, error) {
	p := &pendingRequest{ctx: ctx, desc: desc, result: make(chan result, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	p.enqueuedAt = s.now()
	p.elem = s.queue.PushBack(p)
	depth := s.queue.Len()
	startDrain := !s.draining
	s.draining = true
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
	if s.backlogWarnThreshold > 0 && depth >= s.backlogWarnThreshold {
		s.backlogWarn.Do(func() {
			s.logger.Warn("queue backlog is growing",
				log.Int("depth", depth), log.Duration("estimated_wait", time.Duration(depth)*s.minInterval))
		})
	}
	if startDrain {
		go s.drain()
	}

	select {
	case res := <-p.result:
		return res.body, res.err
	case <-ctx.Done():
		s.mu.Lock()
		if p.elem != nil {
			s.queue.Remove(p.elem)
			p.elem = nil
		}
		depth = s.queue.Len()
		s.mu.Unlock()
		s.metrics.SetQueueDepth(depth)
		select {
		case res := <-p.result:
			// Already dispatched and finished.
			return res.body, res.err
		default:
		}
		return nil, ctx.Err()
	}
}

// Len returns the number of queued requests. The one being executed is not counted.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Close makes the scheduler reject new submissions with ErrClosed.
// Already queued requests are still executed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		var wait time.Duration
		if !s.lastDispatch.IsZero() {
			wait = s.minInterval - s.now().Sub(s.lastDispatch)
		}
		s.mu.Unlock()

		if wait > 0 {
			<-s.timeAfter(wait)
		}

		s.mu.Lock()
		front := s.queue.Front()
		if front == nil {
			s.mu.Unlock()
			continue
		}
		p := s.queue.Remove(front).(*pendingRequest)
		p.elem = nil
		depth := s.queue.Len()
		s.mu.Unlock()

		s.metrics.SetQueueDepth(depth)
		s.execute(p)
	}
}

func (s *Scheduler) execute(p *pendingRequest) {
	if err := p.ctx.Err(); err != nil {
		s.metrics.IncDispatches(DispatchOutcomeCanceled)
		p.result <- result{err: err}
		return
	}

	startedAt := s.now()
	s.metrics.ObserveQueueWait(startedAt.Sub(p.enqueuedAt))

	body, err := s.transport.Do(p.ctx, p.desc)

	finishedAt := s.now()
	s.mu.Lock()
	s.lastDispatch = finishedAt
	s.mu.Unlock()

	elapsed := finishedAt.Sub(startedAt)
	s.metrics.ObserveDispatchDuration(elapsed)
	if err != nil {
		s.metrics.IncDispatches(DispatchOutcomeError)
		s.logger.Warn("upstream request failed",
			log.String("method", p.desc.Method), log.String("url", p.desc.URL),
			log.DurationIn(elapsed, time.Millisecond), log.Error(err))
	} else {
		s.metrics.IncDispatches(DispatchOutcomeSuccess)
		s.logger.Debug("upstream request done",
			log.String("method", p.desc.Method), log.String("url", p.desc.URL),
			log.DurationIn(elapsed, time.Millisecond), log.Int("size", len(body)))
	}
	p.result <- result{body: body, err: err}
}
