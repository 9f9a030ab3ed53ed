// Package vars implements the Per-Thread Variable mechanism of spec
// §4.3: a process-scoped value that the GIL treats as one slot per
// Script-Thread, swapped in and out on every context switch so
// existing accessors ($PWD, $status, $pipestatus, local-variable
// stacks) don't need to change shape to become per-thread.
//
// Grounded on the same save/restore-around-a-context-switch shape as
// pkg/tasks/tasks.go (which swaps in a fresh running task and tears
// down the old one under a single mutex), generalized with a Go
// generic instead of a single hard-coded Task type. No pack library
// models a slot-per-key swap cheaper than a mutex-guarded map, so this
// stays on the standard library (see DESIGN.md).
package vars

import (
	"sync"

	"github.com/ridiculousfish/fish-shell/internal/sched"
	"github.com/ridiculousfish/fish-shell/internal/shellerr"
)

// PerThread publishes one live value of T and keeps a saved slot per
// Script-Thread. It implements sched.Observer; register it with a GIL
// before any thread spawns to have it track that GIL's threads.
type PerThread[T any] struct {
	mu    sync.Mutex
	live  T
	slots map[sched.ThreadID]T
}

// NewPerThread creates a holder whose live value starts at initial.
// Register it with gil.AddObserver to start tracking context switches.
func NewPerThread[T any](initial T) *PerThread[T] {
	return &PerThread[T]{
		live:  initial,
		slots: make(map[sched.ThreadID]T),
	}
}

// Get returns the currently published value — the value belonging to
// whichever Script-Thread is presently scheduled.
func (p *PerThread[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Set overwrites the currently published value. Must be called only by
// the scheduled owner of that value (spec §5 "transaction discipline").
func (p *PerThread[T]) Set(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = v
}

// DidSpawn materializes tid's slot by snapshotting the live value at
// spawn time — this is how a branched child inherits its parent's CWD
// (spec §4.2) without any special-casing in cwd.Observer.
func (p *PerThread[T]) DidSpawn(tid sched.ThreadID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[tid] = p.live
}

// WillUnschedule saves the live value into tid's slot before another
// thread becomes owner.
func (p *PerThread[T]) WillUnschedule(tid sched.ThreadID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.slots[tid]; !ok {
		panic(shellerr.New(shellerr.CodeThreadStateAbsent, "will_unschedule: no slot for thread"))
	}
	p.slots[tid] = p.live
}

// DidSchedule loads tid's slot into the live value as tid becomes owner.
func (p *PerThread[T]) DidSchedule(tid sched.ThreadID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.slots[tid]
	if !ok {
		panic(shellerr.New(shellerr.CodeThreadStateAbsent, "did_schedule: no slot for thread"))
	}
	p.live = v
}

// SeedFor overrides tid's slot right after a spawn, for variables whose
// branch-time inheritance isn't "snapshot the parent's live value" —
// e.g. $status, which spec §4.2/§9 define as always zero in a freshly
// branched child regardless of the parent's current status.
func (p *PerThread[T]) SeedFor(tid sched.ThreadID, v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[tid] = v
}

// WillDestroy drops tid's slot.
func (p *PerThread[T]) WillDestroy(tid sched.ThreadID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, tid)
}
