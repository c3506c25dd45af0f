// Package svcrun is a single-process service-supervision runtime: it lets
// independently written asynchronous services be declared, started, talked
// to over typed message relays, hot-reconfigured, and have their state
// persisted through a pluggable operator, all under one shared scheduling
// context with cooperative cancellation.
//
// The core types are the Handle/Runner pair. A Handle is declared once per
// service type and owns its settings cell and original initial state:
//
//	def := svcrun.Definition[Config, Counter, Msg]{
//	    ID:            "counter",
//	    RelayCapacity: 16,
//	    InitialState:  func(cfg Config) Counter { return Counter{} },
//	    NewOperator: func(cfg Config) svcrun.Operator[Counter] {
//	        return svcrun.NewFileOperator[Counter](cfg.StatePath)
//	    },
//	    Init: NewCounterService,
//	}
//
//	sched := svcrun.NewScheduler(context.Background())
//	handle, err := svcrun.NewHandle(def, initialConfig, sched)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := handle.BuildRunner().Start()
//
// Starting a runner spawns two tasks on the scheduler: the service's own
// run loop and the persistence loop draining its state snapshots into the
// operator. The returned RunHandle supervises both; Stop requests
// cooperative cancellation and the pipeline drains before exiting.
//
// # Communication
//
// Callers reach a running service through relay producers obtained from the
// handle:
//
//	producer, err := handle.RelayProducer()
//	if errors.Is(err, svcrun.ErrNotRunning) {
//	    // no runner has been built yet; the caller decides what to do
//	}
//	err = producer.Send(ctx, Msg{...})
//
// Relays are bounded and ordered: sends block while the buffer is full and
// messages arrive exactly in send order, no matter how many producer clones
// interleave. Settings travel the other way as a last-write-wins cell:
// UpdateSettings replaces the visible value atomically and readers poll it
// without blocking; intermediate values may be skipped but never reordered.
//
// # Design Philosophy
//
// This library prioritizes:
//
//   - Explicit scheduling context (no ambient global runtime)
//   - Cooperative cancellation observed at suspension points only
//   - Backpressure over silent drops on every bounded queue
//   - Strict ordering of messages and persisted snapshots
//   - Type safety (generic over settings, state, and message types)
//
// The persistence operator is deliberately pluggable: the core mandates no
// on-disk format. FileOperator is included because most deployments want an
// atomically replaced JSON snapshot, but any Operator implementation works,
// and one persist failure never halts the pipeline or the service.
package svcrun
