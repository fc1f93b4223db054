// Package publisher fronts an audit.Store. In sync mode Emit writes through; in async
// mode events go to a ring buffer drained by a background worker, so request paths
// never wait on the audit sink.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/audit/worker"
)

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	sampler *Sampler

	bufferSize int
	buffer     *RingBuffer
	wake       chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer capacity.
func WithAsyncBuffer(capacity int) Option {
	return func(p *Publisher) {
		p.bufferSize = capacity
	}
}

// WithSampler drops operations events the sampler does not keep.
func WithSampler(sampler *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = sampler
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = NewRingBuffer(p.bufferSize)
		p.wake = make(chan struct{}, 1)
		p.done = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		w := worker.New(store, p.buffer, p.wake, worker.WithLogger(p.logger))
		go func() {
			defer close(p.done)
			w.Run(ctx)
		}()
	}
	return p
}

// Emit stamps the event and hands it to the store or the buffer.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Category = audit.AuditEvent(event.Action).Category()
	if p.sampler != nil && !p.sampler.Keep(event) {
		return nil
	}

	if p.buffer != nil {
		p.mu.RLock()
		if !p.closed {
			defer p.mu.RUnlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			p.buffer.Enqueue(event)
			select {
			case p.wake <- struct{}{}:
			default:
			}
			return nil
		}
		p.mu.RUnlock()
	}
	return p.store.Append(ctx, event)
}

// List returns the events recorded for identityKey.
func (p *Publisher) List(ctx context.Context, identityKey string) ([]audit.Event, error) {
	return p.store.ListByIdentity(ctx, identityKey)
}

// Dropped reports how many buffered events were overwritten before the worker reached them.
func (p *Publisher) Dropped() int64 {
	if p.buffer == nil {
		return 0
	}
	return p.buffer.Dropped()
}

// Close stops the worker after it drains the buffer. Emit keeps working afterwards in
// sync mode.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	<-p.done
}
