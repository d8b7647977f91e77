// Package eventbus implements the bounded multi-producer, single-consumer
// transport between the ingestion workers and the writer. It replaces the
// process-wide pub/sub bus with a single bounded channel of tagged Records:
// producers publish by value, the writer drains Records().
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

// ErrClosed is returned by Publish once the bus has been closed.
var ErrClosed = errors.New("eventbus: closed")

// Bus is a bounded FIFO of market.Record. Publish blocks when the bus is
// full, giving producers backpressure instead of a silent drop. There is
// exactly one consumer: the writer drains Records() until the channel is
// closed by Close().
type Bus struct {
	records chan market.Record

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Bus with the given capacity. capacity <= 0 is treated as 1.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		records: make(chan market.Record, capacity),
		closed:  make(chan struct{}),
	}
}

// Publish hands ownership of rec to the bus. It assigns an ID if rec.ID is
// empty. It blocks until there is room, ctx is cancelled, or the bus is
// closed.
func (b *Bus) Publish(ctx context.Context, rec market.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	select {
	case b.records <- rec:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records returns the consumer-side channel. There must be exactly one
// reader; the writer is the sole consumer per the concurrency model.
func (b *Bus) Records() <-chan market.Record {
	return b.records
}

// Close stops accepting new publishes and closes the channel. Callers MUST
// ensure every producer has stopped publishing before calling Close
// (cmd/ingest closes the bus only after supervisor.Run has joined its
// workers) since a
// concurrent Publish racing a Close can still panic on send-to-closed-channel
// otherwise. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		close(b.records)
	})
}
