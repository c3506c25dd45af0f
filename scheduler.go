package svcrun

import (
	"context"
	"time"

	"vawter.tech/stopper"
)

// Scheduler is the shared scheduling context threaded through every
// constructor in this package. It wraps a stopper.Context owned by the
// caller: all long-lived work (service loops, persistence loops, watchers)
// is spawned through it, and stopping it requests cooperative shutdown of
// everything spawned so far.
//
// A Scheduler is cheap to share; every component that needs to spawn work
// holds the same pointer. The package never starts a goroutine outside a
// Scheduler.
type Scheduler struct {
	sctx *stopper.Context
}

// NewScheduler wraps ctx in a task group suitable for spawning service and
// persistence tasks. Cancelling ctx hard-cancels everything spawned.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{sctx: stopper.WithContext(ctx)}
}

// Context returns the underlying stopper context. It satisfies
// context.Context and is what spawned tasks should select against.
func (s *Scheduler) Context() *stopper.Context {
	return s.sctx
}

// Spawn runs fn as an independently scheduled task. fn must return promptly
// once its context reports stopping. It reports whether the task was
// accepted; a scheduler that is already stopping rejects new work and never
// runs fn.
func (s *Scheduler) Spawn(fn func(ctx *stopper.Context) error) bool {
	return s.sctx.Go(fn)
}

// Stop requests cooperative shutdown of all spawned tasks, hard-cancelling
// any that are still running after the grace period.
func (s *Scheduler) Stop(grace time.Duration) {
	s.sctx.Stop(grace)
}

// Wait blocks until the scheduler is stopping and all spawned tasks have
// returned.
func (s *Scheduler) Wait() error {
	return s.sctx.Wait()
}
