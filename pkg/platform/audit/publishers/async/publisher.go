// Package async decouples the login path from event delivery. Emit never
// blocks: events land in a bounded ring buffer and a background loop drains
// them to the downstream sink. A circuit breaker limits delivery to one probe
// per flush while the sink is failing.
package async

import (
	"context"
	"log/slog"
	"time"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/circuit"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	drainTimeout         = 5 * time.Second
)

// Publisher buffers events for a downstream audit.Publisher.
type Publisher struct {
	sink          audit.Publisher
	buffer        *RingBuffer
	breaker       *circuit.Breaker
	logger        *slog.Logger
	metrics       *Metrics
	batchSize     int
	flushInterval time.Duration
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithCapacity(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

// New creates a Publisher delivering to sink. Call Run to start delivery.
func New(sink audit.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		sink:          sink,
		buffer:        NewRingBuffer(0),
		breaker:       circuit.New("event-sink"),
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enqueues the event and returns immediately.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	dropped := p.buffer.Enqueue(event)
	if p.metrics != nil {
		p.metrics.Enqueued.Inc()
		if dropped {
			p.metrics.Dropped.Inc()
		}
		p.metrics.Buffered.Set(float64(p.buffer.Len()))
	}
	return nil
}

// Run drains the buffer until ctx is cancelled, then makes a final bounded
// attempt to deliver what is left.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			for p.buffer.Len() > 0 && drainCtx.Err() == nil {
				if delivered := p.Flush(drainCtx); delivered == 0 {
					break
				}
			}
			cancel()
			if n := p.buffer.Len(); n > 0 {
				p.logger.Warn("event publisher stopped with undelivered events", "pending", n)
			}
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush delivers one batch and returns how many events reached the sink.
// Failed events go back into the buffer.
func (p *Publisher) Flush(ctx context.Context) int {
	n := p.batchSize
	if p.breaker.IsOpen() {
		n = 1
	}
	batch := p.buffer.DequeueBatch(n)

	delivered := 0
	for i, event := range batch {
		if err := p.sink.Emit(ctx, event); err != nil {
			p.onFailure(event, err)
			for _, rest := range batch[i+1:] {
				p.buffer.Enqueue(rest)
			}
			break
		}
		delivered++
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("event sink recovered", "breaker", p.breaker.Name())
		}
	}

	if p.metrics != nil {
		p.metrics.Delivered.Add(float64(delivered))
		p.metrics.Buffered.Set(float64(p.buffer.Len()))
		if p.breaker.IsOpen() {
			p.metrics.BreakerState.Set(1)
		} else {
			p.metrics.BreakerState.Set(0)
		}
	}
	return delivered
}

func (p *Publisher) onFailure(event audit.Event, err error) {
	p.buffer.Enqueue(event)
	if p.metrics != nil {
		p.metrics.Failed.Inc()
	}
	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.logger.Error("event sink failing, delivery paused to probes",
			"breaker", p.breaker.Name(),
			"error", err,
		)
		return
	}
	p.logger.Warn("event delivery failed", "event", string(event.Name), "error", err)
}

// Pending returns the number of undelivered events.
func (p *Publisher) Pending() int { return p.buffer.Len() }
