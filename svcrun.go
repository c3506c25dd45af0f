package svcrun

import "time"

// Defaults used when a component is constructed without explicit options.
const (
	// DefaultStateQueueCapacity is the default capacity of the state
	// persistence queue opened by BuildRunner.
	DefaultStateQueueCapacity = 16

	// DefaultStopGrace is the default grace period given to a running
	// service between the stop request and hard cancellation.
	DefaultStopGrace = 5 * time.Second

	// DefaultWatchDebounce is the default debounce time for settings file
	// watching.
	DefaultWatchDebounce = 25 * time.Millisecond
)

// Operation identifies the runtime operation an error originated from.
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpSend is a send on a relay producer
	OpSend
	// OpRecv is a receive on a relay consumer
	OpRecv
	// OpPush is a push on a state updater
	OpPush
	// OpPersist is a single persist call on a state operator
	OpPersist
	// OpStart is a runner start
	OpStart
	// OpBuild is a runner build
	OpBuild
	// OpWatch is a settings file watch
	OpWatch
)

// Operation string constants
const (
	opUnknownStr = "unknown"
	opSendStr    = "send"
	opRecvStr    = "recv"
	opPushStr    = "push"
	opPersistStr = "persist"
	opStartStr   = "start"
	opBuildStr   = "build"
	opWatchStr   = "watch"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpSend:
		return opSendStr
	case OpRecv:
		return opRecvStr
	case OpPush:
		return opPushStr
	case OpPersist:
		return opPersistStr
	case OpStart:
		return opStartStr
	case OpBuild:
		return opBuildStr
	case OpWatch:
		return opWatchStr
	default:
		return opUnknownStr
	}
}
