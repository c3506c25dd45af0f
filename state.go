package svcrun

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

// Operator is the pluggable persistence policy for one service's state
// snapshots. Persist is only ever invoked from the single persistence task,
// one snapshot at a time, so implementations need no synchronization beyond
// whatever their own resource requires.
type Operator[S any] interface {
	// Persist stores one snapshot, reporting success or failure for that
	// snapshot only. A failure does not stop the pipeline.
	Persist(ctx context.Context, snapshot S) error
}

// SettingsAware may be implemented by an Operator that wants to observe
// settings updates published after it was constructed. BuildRunner hands
// such an operator a notifier before the pipeline starts; operators that do
// not implement it keep the settings snapshot they were built from.
type SettingsAware[C any] interface {
	ObserveSettings(n *SettingsNotifier[C])
}

// NoState is the state type for services that keep nothing worth
// persisting.
type NoState struct{}

// NoStateFrom derives a NoState from any settings value.
func NoStateFrom[C any](C) NoState {
	return NoState{}
}

// NoOperator is an Operator that discards every snapshot.
type NoOperator[S any] struct{}

// Persist implements Operator. It never fails.
func (NoOperator[S]) Persist(context.Context, S) error {
	return nil
}

// NoOperatorFrom constructs a NoOperator from any settings value. It is the
// NewOperator of choice for service definitions without persistence.
func NoOperatorFrom[C, S any](C) Operator[S] {
	return NoOperator[S]{}
}

// StateUpdater is the push side of a state persistence pipeline. It is
// owned by the running service; the runner closes it when the service
// returns, which lets the pipeline drain and exit.
type StateUpdater[S any] struct {
	queue  chan S
	closed atomic.Bool
}

// Push enqueues one snapshot for persistence. The queue is bounded: Push
// blocks while it is full, applying the same backpressure contract as a
// relay send, and returns ctx.Err() if ctx is done first. It returns
// ErrChannelClosed after Close.
//
// Push must not be called concurrently with Close; ownership of the updater
// belongs to the service loop.
func (u *StateUpdater[S]) Push(ctx context.Context, snapshot S) error {
	if u.closed.Load() {
		return ErrChannelClosed
	}
	select {
	case u.queue <- snapshot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the updater finished. The pipeline persists whatever is still
// queued and then returns. Close is idempotent.
func (u *StateUpdater[S]) Close() {
	if u.closed.Swap(true) {
		return
	}
	close(u.queue)
}

// StateHandle is the consumer side of a state persistence pipeline: a
// long-lived task draining pushed snapshots into an Operator, strictly in
// push order, one persist at a time.
type StateHandle[S any] struct {
	service string
	initial S
	queue   <-chan S
	op      Operator[S]
	log     zerolog.Logger
	metrics *Metrics
}

// StateOption configures a state persistence pipeline.
type StateOption func(*stateConfig)

type stateConfig struct {
	capacity int
	service  string
	log      zerolog.Logger
	metrics  *Metrics
}

// WithStateQueueCapacity sets the capacity of the bounded snapshot queue.
func WithStateQueueCapacity(n int) StateOption {
	return func(c *stateConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithStateLogger sets the logger used for persist failures.
func WithStateLogger(log zerolog.Logger) StateOption {
	return func(c *stateConfig) {
		c.log = log
	}
}

// WithStateService tags the pipeline with a service identifier for logs
// and metrics.
func WithStateService(id string) StateOption {
	return func(c *stateConfig) {
		c.service = id
	}
}

// WithStateMetrics attaches persist counters to the pipeline.
func WithStateMetrics(m *Metrics) StateOption {
	return func(c *stateConfig) {
		c.metrics = m
	}
}

// OpenState opens a state persistence pipeline seeded with initial and
// draining into op.
func OpenState[S any](initial S, op Operator[S], opts ...StateOption) (*StateHandle[S], *StateUpdater[S]) {
	cfg := stateConfig{
		capacity: DefaultStateQueueCapacity,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	queue := make(chan S, cfg.capacity)
	updater := &StateUpdater[S]{queue: queue}
	handle := &StateHandle[S]{
		service: cfg.service,
		initial: initial,
		queue:   queue,
		op:      op,
		log:     cfg.log,
		metrics: cfg.metrics,
	}
	return handle, updater
}

// Initial returns the state the pipeline was seeded with.
func (h *StateHandle[S]) Initial() S {
	return h.initial
}

// Run drains the snapshot queue until the updater is closed and the queue
// is empty, invoking Persist sequentially in push order. A failed persist
// is logged and counted, then the next snapshot proceeds; it never halts
// the pipeline. Run returns ctx.Err() only on hard cancellation.
func (h *StateHandle[S]) Run(ctx *stopper.Context) error {
	for {
		select {
		case snapshot, ok := <-h.queue:
			if !ok {
				return nil
			}
			h.persist(ctx, snapshot)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *StateHandle[S]) persist(ctx context.Context, snapshot S) {
	err := h.op.Persist(ctx, snapshot)
	h.metrics.recordPersist(h.service, err)
	if err != nil {
		opErr := &OpError{Op: OpPersist, Service: h.service, Err: err}
		h.log.Error().Err(opErr).Str("service", h.service).Msg("state persist failed")
	}
}
