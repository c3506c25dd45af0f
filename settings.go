package svcrun

import (
	"sync"
	"sync/atomic"
)

// settingsSnapshot pairs a settings value with the publish counter current
// when it was stored. Snapshots are immutable once stored; updates replace
// the whole pointer so readers never observe a torn value.
type settingsSnapshot[C any] struct {
	value   C
	version uint64
}

type settingsCell[C any] struct {
	cur     atomic.Pointer[settingsSnapshot[C]]
	version atomic.Uint64
}

// SettingsUpdater is the single writer side of a last-write-wins settings
// cell. It is owned by the service Handle; everything else reads through
// notifiers derived from it.
type SettingsUpdater[C any] struct {
	cell *settingsCell[C]

	// Serializes Update so the version counter and the stored snapshot
	// always advance together even with concurrent writers. Readers never
	// take this lock.
	mu sync.Mutex
}

// SettingsNotifier is a read handle on a settings cell. Notifiers are cheap
// to clone and safe for concurrent use; Current never blocks and always
// returns the most recently published value.
//
// The cell holds exactly one value. A notifier that does not poll between
// two publishes observes only the later one; there is no history or replay.
type SettingsNotifier[C any] struct {
	cell *settingsCell[C]
}

// NewSettingsUpdater opens a settings cell seeded with initial.
func NewSettingsUpdater[C any](initial C) *SettingsUpdater[C] {
	cell := &settingsCell[C]{}
	cell.cur.Store(&settingsSnapshot[C]{value: initial})
	return &SettingsUpdater[C]{cell: cell}
}

// Update atomically replaces the visible settings value. Updates from
// concurrent writers are serialized, so the version visible through a
// notifier never moves backwards.
func (u *SettingsUpdater[C]) Update(v C) {
	u.mu.Lock()
	defer u.mu.Unlock()
	version := u.cell.version.Add(1)
	u.cell.cur.Store(&settingsSnapshot[C]{value: v, version: version})
}

// Notifier returns a fresh read handle on the cell.
func (u *SettingsUpdater[C]) Notifier() *SettingsNotifier[C] {
	return &SettingsNotifier[C]{cell: u.cell}
}

// Current returns the most recently published settings value as of the
// call. It never blocks.
func (n *SettingsNotifier[C]) Current() C {
	return n.cell.cur.Load().value
}

// Version returns the publish counter of the value Current would return.
// The initial value has version zero; each Update increments it.
func (n *SettingsNotifier[C]) Version() uint64 {
	return n.cell.cur.Load().version
}

// Clone returns an independent notifier for the same cell.
func (n *SettingsNotifier[C]) Clone() *SettingsNotifier[C] {
	return &SettingsNotifier[C]{cell: n.cell}
}
