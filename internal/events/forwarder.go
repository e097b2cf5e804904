package events

import (
	"context"
	"sync"
	"time"

	"directstock/internal/domain"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type queuedMovement struct {
	spanCtx trace.SpanContext
	entry   domain.MovementEntry
}

// Forwarder subscribes to the journal and hands committed entries to a publisher on a
// background worker, so broker latency never holds a request open. The journal stays
// the source of truth; entries dropped on a full queue can be recovered from it.
type Forwarder struct {
	publisher MovementPublisher
	queue     chan queuedMovement
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewForwarder(publisher MovementPublisher, queueSize int, logger *zap.Logger) *Forwarder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	f := &Forwarder{
		publisher: publisher,
		queue:     make(chan queuedMovement, queueSize),
		timeout:   10 * time.Second,
		logger:    logger,
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// MovementCommitted implements ledger.Listener. Entries arriving after Close are
// dropped; they remain in the journal.
func (f *Forwarder) MovementCommitted(ctx context.Context, entry domain.MovementEntry) {
	item := queuedMovement{spanCtx: trace.SpanContextFromContext(ctx), entry: entry}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.logger.Warn("Forwarder closed, event dropped",
			zap.String("entry_id", entry.ID),
			zap.String("reference_number", entry.ReferenceNumber),
		)
		return
	}
	select {
	case f.queue <- item:
	default:
		f.logger.Error("Movement queue full, event dropped",
			zap.String("entry_id", entry.ID),
			zap.String("reference_number", entry.ReferenceNumber),
		)
	}
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for item := range f.queue {
		ctx := trace.ContextWithSpanContext(context.Background(), item.spanCtx)
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		if err := f.publisher.Publish(ctx, item.entry); err != nil {
			f.logger.Error("Failed to publish movement",
				zap.String("entry_id", item.entry.ID),
				zap.String("reference_number", item.entry.ReferenceNumber),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to expire.
// The publisher is closed once the worker has finished.
func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return f.publisher.Close()
	case <-ctx.Done():
		f.logger.Warn("Movement queue not drained before shutdown", zap.Int("pending", len(f.queue)))
		return ctx.Err()
	}
}
