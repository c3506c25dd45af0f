package svcrun

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

// Handle is the long-lived, per-service-type object a supervisor holds: it
// owns the settings cell, the service's original initial state, and, once a
// runner has been built, the current relay producer. It exists from
// construction until process teardown and is safe for concurrent use.
type Handle[C, S, M any] struct {
	def      Definition[C, S, M]
	settings *SettingsUpdater[C]
	initial  S
	sched    *Scheduler
	log      zerolog.Logger
	metrics  *Metrics
	stateCap int

	mu       sync.Mutex
	producer *OutboundRelay[M]
}

// HandleOption configures a Handle.
type HandleOption func(*handleConfig)

type handleConfig struct {
	log      zerolog.Logger
	metrics  *Metrics
	stateCap int
}

// WithLogger sets the logger used by the handle, its runners, and their
// pipelines. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) HandleOption {
	return func(c *handleConfig) {
		c.log = log
	}
}

// WithMetrics attaches prometheus instrumentation to the handle and
// everything it builds.
func WithMetrics(m *Metrics) HandleOption {
	return func(c *handleConfig) {
		c.metrics = m
	}
}

// WithHandleStateCapacity overrides the state queue capacity used by
// runners built from this handle.
func WithHandleStateCapacity(n int) HandleOption {
	return func(c *handleConfig) {
		if n > 0 {
			c.stateCap = n
		}
	}
}

// NewHandle constructs the handle for one declared service. The initial
// state is derived from settings exactly once, here; rebuilding a runner
// later reseeds from this value, not from wherever a previous run left off.
func NewHandle[C, S, M any](def Definition[C, S, M], settings C, sched *Scheduler, opts ...HandleOption) (*Handle[C, S, M], error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	cfg := handleConfig{
		log:      zerolog.Nop(),
		stateCap: DefaultStateQueueCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Handle[C, S, M]{
		def:      def,
		settings: NewSettingsUpdater(settings),
		initial:  def.initialState(settings),
		sched:    sched,
		log:      cfg.log.With().Str("service", def.ID).Logger(),
		metrics:  cfg.metrics,
		stateCap: cfg.stateCap,
	}, nil
}

// ID returns the static service identifier.
func (h *Handle[C, S, M]) ID() string {
	return h.def.ID
}

// Scheduler returns the shared scheduling context.
func (h *Handle[C, S, M]) Scheduler() *Scheduler {
	return h.sched
}

// UpdateSettings atomically replaces the settings value visible to every
// existing and future notifier on its next Current call.
func (h *Handle[C, S, M]) UpdateSettings(v C) {
	h.settings.Update(v)
}

// Settings returns a fresh notifier on the handle's settings cell.
func (h *Handle[C, S, M]) Settings() *SettingsNotifier[C] {
	return h.settings.Notifier()
}

// RelayProducer returns an independent producer for the relay of the most
// recently built runner, or ErrNotRunning if no runner has been built yet.
// There is no waiting or retry; the caller decides what to do with
// ErrNotRunning. The caller owns the returned clone and should close it
// when done sending.
func (h *Handle[C, S, M]) RelayProducer() (*OutboundRelay[M], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.producer == nil {
		return nil, ErrNotRunning
	}
	return h.producer.Clone(), nil
}

// BuildRunner assembles a spawn-ready runner: a fresh relay pair sized to
// the definition's capacity, a fresh operator built from the current
// settings snapshot, and a fresh persistence pipeline reseeded from the
// handle's original initial state. The new relay producer replaces any
// previous one held by the handle; a previously started runner is not
// stopped and producers already cloned out keep working against the old
// relay.
func (h *Handle[C, S, M]) BuildRunner() *Runner[C, S, M] {
	runID := uuid.New()
	inbound, outbound := OpenRelay[M](h.def.RelayCapacity)
	if h.metrics != nil {
		id := h.def.ID
		inbound.core.onSend = func() { h.metrics.recordRelaySend(id) }
	}

	h.mu.Lock()
	prev := h.producer
	h.producer = outbound
	h.mu.Unlock()
	if prev != nil {
		// Drop the handle's reference to the orphaned relay.
		prev.Close()
	}

	snapshot := h.settings.Notifier().Current()
	op := h.def.newOperator(snapshot)
	if aware, ok := op.(SettingsAware[C]); ok {
		aware.ObserveSettings(h.settings.Notifier())
	}

	pipeline, updater := OpenState(h.initial, op,
		WithStateQueueCapacity(h.stateCap),
		WithStateService(h.def.ID),
		WithStateLogger(h.log),
		WithStateMetrics(h.metrics),
	)

	state := &ServiceState[C, S, M]{
		Relay:    inbound,
		Settings: h.settings.Notifier(),
		State:    updater,
		Initial:  h.initial,
		Sched:    h.sched,
		id:       h.def.ID,
		runID:    runID,
	}

	return &Runner[C, S, M]{
		def:      h.def,
		state:    state,
		pipeline: pipeline,
		sched:    h.sched,
		log:      h.log.With().Stringer("run_id", runID).Logger(),
		metrics:  h.metrics,
		runID:    runID,
	}
}

// Runner couples one service state bundle with its persistence pipeline.
// It is transient: built by BuildRunner, consumed by Start.
type Runner[C, S, M any] struct {
	def      Definition[C, S, M]
	state    *ServiceState[C, S, M]
	pipeline *StateHandle[S]
	sched    *Scheduler
	log      zerolog.Logger
	metrics  *Metrics
	runID    uuid.UUID
	started  atomic.Bool
}

// Start constructs the service instance from the bundle and spawns its run
// loop and the persistence loop as two tasks under one supervising
// RunHandle. The bundle and pipeline are consumed; Start may be called only
// once per runner.
func (r *Runner[C, S, M]) Start() (*RunHandle, error) {
	if r.started.Swap(true) {
		return nil, &OpError{Op: OpStart, Service: r.def.ID, Err: ErrRunnerStarted}
	}
	if r.sched.Context().IsStopping() {
		return nil, &OpError{Op: OpStart, Service: r.def.ID, Err: ErrSchedulerStopped}
	}

	sctx := stopper.WithContext(r.sched.Context())
	run := &RunHandle{
		service: r.def.ID,
		runID:   r.runID,
		sctx:    sctx,
		done:    make(chan struct{}),
	}
	run.tasks.Add(2)

	service := r.def.Init(r.state)
	relay := r.state.Relay
	updater := r.state.State
	log := r.log

	accepted := sctx.Go(func(ctx *stopper.Context) error {
		defer run.tasks.Done()
		err := service.Run(ctx)
		// The service is the sole owner of both the relay consumer and the
		// state pusher; release them so senders fail fast and the pipeline
		// drains to completion.
		relay.Close()
		updater.Close()
		run.finish(err)
		if err != nil {
			log.Error().Err(err).Msg("service task finished with error")
			return err
		}
		log.Debug().Msg("service task finished")
		return nil
	})
	if !accepted {
		// The scheduler began stopping after the guard above; neither task
		// was spawned, so release everything the run would have owned.
		run.tasks.Done()
		run.tasks.Done()
		relay.Close()
		updater.Close()
		startErr := &OpError{Op: OpStart, Service: r.def.ID, Err: ErrSchedulerStopped}
		run.finish(startErr)
		return nil, startErr
	}
	if !sctx.Go(func(ctx *stopper.Context) error {
		defer run.tasks.Done()
		return r.pipeline.Run(ctx)
	}) {
		// The service task is already running; the stopping scheduler
		// cancels it and its wrapper releases the relay and the updater.
		run.tasks.Done()
		return nil, &OpError{Op: OpStart, Service: r.def.ID, Err: ErrSchedulerStopped}
	}

	r.metrics.recordRunnerStart(r.def.ID)
	log.Debug().Msg("service started")
	return run, nil
}

// RunHandle supervises one started run: the service task and its
// persistence task. Stopping it requests cooperative cancellation of the
// service; the persistence task then drains the remaining snapshots and
// exits on its own.
type RunHandle struct {
	service string
	runID   uuid.UUID
	sctx    *stopper.Context
	tasks   sync.WaitGroup

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Service returns the service identifier of this run.
func (r *RunHandle) Service() string {
	return r.service
}

// RunID returns the unique identifier of this run.
func (r *RunHandle) RunID() uuid.UUID {
	return r.runID
}

// Stop requests cooperative cancellation. The service task observes the
// stop signal at its next suspension point; tasks still running after the
// grace period are hard-cancelled. Stop does not wait; use Wait.
func (r *RunHandle) Stop(grace time.Duration) {
	r.sctx.Stop(grace)
}

// Done is closed once the service task has returned.
func (r *RunHandle) Done() <-chan struct{} {
	return r.done
}

// Err returns the service task's completion error. It is only meaningful
// after Done is closed.
func (r *RunHandle) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until both the service task and the persistence task have
// returned, then reports the service task's completion error.
func (r *RunHandle) Wait() error {
	r.tasks.Wait()
	<-r.done
	return r.Err()
}

func (r *RunHandle) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)
}
