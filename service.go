package svcrun

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"vawter.tech/stopper"
)

// Service is one running instance of a declared service: constructed from a
// ServiceState bundle, it runs to completion, suspending as needed. Run must
// return promptly once ctx reports stopping; cancellation is cooperative and
// is only observed at suspension points.
type Service interface {
	Run(ctx *stopper.Context) error
}

// Definition is the static, per-service-type contract. Exactly one
// Definition exists per declared service; its type parameters fix the
// settings type C, the state type S, and the relay message type M.
type Definition[C, S, M any] struct {
	// ID is the stable service identifier.
	ID string

	// RelayCapacity is the bounded relay buffer size. Must be positive.
	RelayCapacity int

	// InitialState derives the service's initial state from its initial
	// settings. It is invoked once, at handle construction; every runner
	// built afterwards is reseeded from that one value. Nil means the zero
	// value of S.
	InitialState func(settings C) S

	// NewOperator constructs the persistence operator from the settings
	// snapshot visible when a runner is built. Nil means NoOperator.
	NewOperator func(settings C) Operator[S]

	// Init constructs a service instance from its resource bundle.
	Init func(state *ServiceState[C, S, M]) Service
}

// validate checks the static contract at handle construction.
func (d Definition[C, S, M]) validate() error {
	if d.ID == "" {
		return errors.New("svcrun: definition requires a service ID")
	}
	if d.RelayCapacity < 1 {
		return fmt.Errorf("svcrun: definition %q requires a positive relay capacity, got %d", d.ID, d.RelayCapacity)
	}
	if d.Init == nil {
		return fmt.Errorf("svcrun: definition %q requires an Init function", d.ID)
	}
	return nil
}

func (d Definition[C, S, M]) initialState(settings C) S {
	if d.InitialState == nil {
		var zero S
		return zero
	}
	return d.InitialState(settings)
}

func (d Definition[C, S, M]) newOperator(settings C) Operator[S] {
	if d.NewOperator == nil {
		return NoOperator[S]{}
	}
	return d.NewOperator(settings)
}

// ServiceState is the resource bundle handed to a starting service: the
// consumer side of its relay, a settings notifier, the push side of its
// state pipeline, its initial state, and the shared scheduler. A fresh
// bundle is assembled on every BuildRunner.
type ServiceState[C, S, M any] struct {
	// Relay is the inbound message relay. The runner closes it after the
	// service returns, so senders observe ErrChannelClosed.
	Relay *InboundRelay[M]

	// Settings reads the current settings snapshot without blocking.
	Settings *SettingsNotifier[C]

	// State pushes snapshots into the persistence pipeline.
	State *StateUpdater[S]

	// Initial is the state this run was seeded from.
	Initial S

	// Sched is the shared scheduling context.
	Sched *Scheduler

	id    string
	runID uuid.UUID
}

// ID returns the static service identifier.
func (s *ServiceState[C, S, M]) ID() string {
	return s.id
}

// RunID returns the identifier of the run this bundle was built for.
func (s *ServiceState[C, S, M]) RunID() uuid.UUID {
	return s.runID
}
