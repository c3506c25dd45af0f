package svcrun

import (
	"context"
	"sync"
	"sync/atomic"
)

// relayCore is the state shared between the consumer and all producer
// clones of one relay pair.
type relayCore[M any] struct {
	buf chan M

	// closed is signalled when the consumer side goes away; producers
	// observe it and fail sends with ErrChannelClosed.
	closed    chan struct{}
	closeOnce sync.Once

	// producers counts live producer clones. The buffer channel is closed
	// when the count reaches zero, which lets the consumer drain the
	// remaining messages and then observe end-of-stream.
	producers atomic.Int64

	// onSend is an optional instrumentation hook installed by BuildRunner.
	onSend func()
}

// InboundRelay is the single consumer side of a relay pair. It is handed to
// the running service inside its ServiceState bundle and must not be shared
// between goroutines.
type InboundRelay[M any] struct {
	core *relayCore[M]
}

// OutboundRelay is the producer side of a relay pair. Clones may be handed
// to any number of callers; each clone is closed independently and sends
// from all clones interleave in channel order.
type OutboundRelay[M any] struct {
	core   *relayCore[M]
	closed atomic.Bool
}

// OpenRelay opens a bounded, ordered relay pair with the given buffer
// capacity. Capacity must be positive.
func OpenRelay[M any](capacity int) (*InboundRelay[M], *OutboundRelay[M]) {
	if capacity < 1 {
		capacity = 1
	}
	core := &relayCore[M]{
		buf:    make(chan M, capacity),
		closed: make(chan struct{}),
	}
	core.producers.Store(1)
	return &InboundRelay[M]{core: core}, &OutboundRelay[M]{core: core}
}

// Send delivers msg to the consumer, blocking while the buffer is full.
// It returns ErrChannelClosed once the consumer side has been closed, and
// ctx.Err() if ctx is done before the message is accepted. Messages accepted
// by Send are delivered in acceptance order, exactly once.
func (o *OutboundRelay[M]) Send(ctx context.Context, msg M) error {
	if o.closed.Load() {
		return ErrChannelClosed
	}
	// Prefer the closed signal over a racing buffer slot.
	select {
	case <-o.core.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case o.core.buf <- msg:
		if o.core.onSend != nil {
			o.core.onSend()
		}
		return nil
	case <-o.core.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone returns an independent producer for the same relay. The relay
// reaches end-of-stream only after every clone has been closed. Clone must
// not be called on a closed producer.
func (o *OutboundRelay[M]) Clone() *OutboundRelay[M] {
	o.core.producers.Add(1)
	return &OutboundRelay[M]{core: o.core}
}

// Close releases this producer clone. When the last clone is closed the
// consumer drains any buffered messages and then observes end-of-stream.
// Close is idempotent per clone.
func (o *OutboundRelay[M]) Close() {
	if o.closed.Swap(true) {
		return
	}
	if o.core.producers.Add(-1) == 0 {
		close(o.core.buf)
	}
}

// Recv returns the next message in send order, blocking while the buffer is
// empty. After every producer clone has been closed and the buffer drained
// it returns ErrChannelClosed. It returns ctx.Err() if ctx is done first.
func (i *InboundRelay[M]) Recv(ctx context.Context) (M, error) {
	var zero M
	select {
	case msg, ok := <-i.core.buf:
		if !ok {
			return zero, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close drops the consumer side. Producers observe ErrChannelClosed on
// their next send. Buffered but unreceived messages are discarded. Close is
// idempotent.
func (i *InboundRelay[M]) Close() {
	i.core.closeOnce.Do(func() {
		close(i.core.closed)
	})
}
