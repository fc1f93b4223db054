// Package queue is the outbound rate limiter for calls to the chain-data service.
//
// A bounded channel feeds a single worker that starts at most one call per
// interval. Submit never blocks: it either hands back a Future or fails fast with
// ErrQueueFull. Ordering is FIFO by enqueue time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paymail-bridge/internal/ratelimit/metrics"
)

var (
	ErrQueueFull   = errors.New("fetch queue is full")
	ErrQueueClosed = errors.New("fetch queue is closed")
)

// Func is one outbound call. It runs on the worker with the submitter's context.
type Func func(ctx context.Context) (any, error)

// Future resolves exactly once with the call's result.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call completes or ctx ends. Abandoning a Future does not
// remove the call from the queue; the worker skips calls whose context is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	ctx      context.Context
	fn       Func
	future   *Future
	enqueued time.Time
}

// Queue serializes outbound calls behind a minimum inter-call interval.
type Queue struct {
	jobs     chan job
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// New creates a queue holding at most size pending calls.
func New(size int, interval time.Duration, opts ...Option) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		jobs:     make(chan job, size),
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit enqueues fn and returns its Future without waiting for it to run.
func (q *Queue) Submit(ctx context.Context, fn Func) (*Future, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.reject("closed")
		return nil, ErrQueueClosed
	}
	f := newFuture()
	select {
	case q.jobs <- job{ctx: ctx, fn: fn, future: f, enqueued: time.Now()}:
		if q.metrics != nil {
			q.metrics.IncQueued()
		}
		return f, nil
	default:
		q.reject("full")
		return nil, ErrQueueFull
	}
}

// Do submits fn and waits for its typed result.
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	f, err := q.Submit(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Run drains the queue until ctx is cancelled, then rejects everything still
// pending with ErrQueueClosed.
func (q *Queue) Run(ctx context.Context) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			q.shutdown()
			return
		case j := <-q.jobs:
			if q.metrics != nil {
				q.metrics.ObserveDequeued(j.enqueued)
			}
			if err := j.ctx.Err(); err != nil {
				q.reject("abandoned")
				j.future.resolve(nil, err)
				continue
			}
			if !last.IsZero() {
				if wait := q.interval - time.Since(last); wait > 0 {
					timer := time.NewTimer(wait)
					select {
					case <-ctx.Done():
						timer.Stop()
						j.future.resolve(nil, ErrQueueClosed)
						q.shutdown()
						return
					case <-timer.C:
					}
				}
			}
			last = time.Now()
			q.execute(j)
		}
	}
}

func (q *Queue) execute(j job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(j.ctx, "outbound fetch panicked", "panic", r)
			q.observe("panic")
			j.future.resolve(nil, fmt.Errorf("outbound fetch panicked: %v", r))
		}
	}()
	v, err := j.fn(j.ctx)
	if err != nil {
		q.observe("error")
	} else {
		q.observe("ok")
	}
	j.future.resolve(v, err)
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	for {
		select {
		case j := <-q.jobs:
			if q.metrics != nil {
				q.metrics.ObserveDequeued(j.enqueued)
			}
			j.future.resolve(nil, ErrQueueClosed)
		default:
			return
		}
	}
}

func (q *Queue) observe(outcome string) {
	if q.metrics != nil {
		q.metrics.IncExecuted(outcome)
	}
}

func (q *Queue) reject(reason string) {
	if q.metrics != nil {
		q.metrics.IncRejected(reason)
	}
}
