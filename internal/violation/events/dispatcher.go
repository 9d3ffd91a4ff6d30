package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trafficwatch/internal/violation/metrics"
	"trafficwatch/pkg/platform/circuit"
)

const (
	defaultBufferSize = 1024
	defaultBatchSize  = 64
	// drainTimeout bounds how long Run keeps flushing after shutdown.
	drainTimeout = 5 * time.Second
)

// Dispatcher buffers events and forwards them to a Sink from a single
// background goroutine.
type Dispatcher struct {
	sink      Sink
	inbox     chan Event
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	breaker   *circuit.Breaker

	// mu orders Publish against Close: once Close holds it, no further
	// event can enter inbox, so the final drain sees everything accepted.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithBreaker sheds batches while the breaker is open instead of calling a
// sink that keeps failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

// WithBufferSize sets how many events may wait for delivery before new ones are dropped.
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inbox = make(chan Event, n)
		}
	}
}

// WithBatchSize caps the number of events handed to the sink at once.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// NewDispatcher constructs a Dispatcher. Call Run to start delivery.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:      sink,
		inbox:     make(chan Event, defaultBufferSize),
		batchSize: defaultBatchSize,
		logger:    slog.New(slog.DiscardHandler),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish enqueues ev without blocking. Returns false if the event was dropped.
func (d *Dispatcher) Publish(_ context.Context, ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.inbox <- ev:
		return true
	default:
		if d.metrics != nil {
			d.metrics.IncrementEventsDropped()
		}
		return false
	}
}

// Run delivers events until ctx is cancelled or Close is called, then drains
// whatever is still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			d.drain()
			return nil
		case <-d.done:
			d.drain()
			return nil
		case ev := <-d.inbox:
			d.deliver(ctx, d.collect(ev))
		}
	}
}

// Close stops accepting events. Run flushes the buffer and returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
}

// collect gathers first plus any immediately available events into a batch.
func (d *Dispatcher) collect(first Event) []Event {
	batch := []Event{first}
	for len(batch) < d.batchSize {
		select {
		case ev := <-d.inbox:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (d *Dispatcher) deliver(ctx context.Context, batch []Event) {
	if d.breaker != nil && !d.breaker.Allow() {
		if d.metrics != nil {
			d.metrics.IncrementEventsShed(len(batch))
		}
		return
	}
	if err := d.sink.Send(ctx, batch); err != nil {
		d.logger.ErrorContext(ctx, "failed to deliver violation events",
			"count", len(batch),
			"first_event_id", batch[0].ID,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.IncrementEventSendFailures(len(batch))
		}
		d.recordFailure(ctx)
		return
	}
	if d.metrics != nil {
		d.metrics.IncrementEventsPublished(len(batch))
	}
	d.recordSuccess(ctx)
}

func (d *Dispatcher) recordFailure(ctx context.Context) {
	if d.breaker == nil {
		return
	}
	if _, change := d.breaker.RecordFailure(); change.Opened {
		d.logger.WarnContext(ctx, "event sink circuit opened", "breaker", d.breaker.Name())
	}
}

func (d *Dispatcher) recordSuccess(ctx context.Context) {
	if d.breaker == nil {
		return
	}
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.InfoContext(ctx, "event sink circuit closed", "breaker", d.breaker.Name())
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.inbox:
			d.deliver(ctx, d.collect(ev))
		default:
			return
		}
	}
}
