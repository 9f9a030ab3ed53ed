// Package sched implements the Global Interpreter Lock described in
// spec §4.1 and §3: a single-owner, FIFO-waitqueue scheduler for
// cooperatively-run Script-Threads, plus the Observer capability set
// that every context switch fires.
//
// Grounded on pkg/tasks/tasks.go's single-current-task bookkeeping
// (a stop channel plus a notify-stopped channel guarding one
// in-flight goroutine at a time), generalized from "one task, cancel
// and replace" to "many Script-Threads, FIFO hand-off" with a
// condition variable standing in for the stop/notify channel pair.
package sched

import (
	"sync"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/shellerr"
)

// ThreadID is the monotonically assigned, process-unique id of a
// Script-Thread (spec §3).
type ThreadID uint64

// Observer is the capability set fired on every Script-Thread lifecycle
// transition (spec §4.1, §9 "dynamic dispatch of observers"). Hooks are
// expected to be infallible: they only swap already-allocated state.
type Observer interface {
	DidSpawn(tid ThreadID)
	WillDestroy(tid ThreadID)
	DidSchedule(tid ThreadID)
	WillUnschedule(tid ThreadID)
}

type threadState int

const (
	stateFresh threadState = iota
	stateReady
	stateRunning
	stateDead
)

// Thread is an opaque Script-Thread handle (spec §3).
type Thread struct {
	id       ThreadID
	state    threadState
	enqueued bool
}

// ID returns the thread's unique id.
func (t *Thread) ID() ThreadID { return t.id }

// GIL is the Global Interpreter Lock: exactly one owner, a FIFO
// waitqueue, and the registered observers (spec §3 "GIL State").
type GIL struct {
	mu        deadlock.Mutex
	cond      *sync.Cond
	owner     *Thread
	waitq     []*Thread
	observers []Observer
	nextID    ThreadID
	log       *logrus.Entry
}

// New returns an empty GIL with no owner and no waiters.
func New(log *logrus.Entry) *GIL {
	g := &GIL{log: log}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// AddObserver registers a new observer. Per spec §9, observers may be
// registered at runtime before scheduling begins; registering one
// after Script-Threads already exist means it simply never sees their
// did_spawn.
func (g *GIL) AddObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// Spawn registers a new Script-Thread and fires did_spawn on every
// observer. It does not schedule the thread; the caller must still
// call Run. Spawn is meant to be called by code running on behalf of
// an already-scheduled parent thread, so "with the GIL held" (spec
// §4.1) is satisfied by the parent never releasing between deciding to
// branch and calling Spawn.
func (g *GIL) Spawn() *Thread {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	t := &Thread{id: g.nextID, state: stateFresh}

	for _, o := range g.observers {
		o.DidSpawn(t.id)
	}
	t.state = stateReady
	return t
}

// Run enqueues thread onto the FIFO waitqueue, sleeps until it becomes
// owner, and returns with the GIL held (did_schedule has fired).
func (g *GIL) Run(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.state == stateDead {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "run called on a destroyed thread"))
	}
	if t.enqueued || g.owner == t {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "run called on a thread already owner or enqueued"))
	}

	g.waitq = append(g.waitq, t)
	t.enqueued = true
	g.dispatchLocked()

	for g.owner != t {
		g.cond.Wait()
	}
	t.enqueued = false
}

// Yield atomically releases then re-acquires the GIL, used at explicit
// cooperative yield points inside long-running script loops. It is not
// a no-op when the waitqueue is non-empty: the caller goes to the back
// of the FIFO.
func (g *GIL) Yield(t *Thread) {
	g.Release(t)
	g.Run(t)
}

// Release gives up ownership, firing will_unschedule, then hands the
// GIL to the next FIFO waiter if any.
func (g *GIL) Release(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != t {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "release called by non-owner"))
	}

	for _, o := range g.observers {
		o.WillUnschedule(t.id)
	}
	g.owner = nil
	t.state = stateReady
	g.dispatchLocked()
}

// Destroy fires will_destroy. Precondition: thread is neither owner
// nor enqueued.
func (g *GIL) Destroy(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner == t || t.enqueued {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "destroy called on a running or enqueued thread"))
	}

	for _, o := range g.observers {
		o.WillDestroy(t.id)
	}
	t.state = stateDead
}

// IsScheduled reports whether t is the current GIL owner.
func (g *GIL) IsScheduled(t *Thread) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner == t
}

// WaitingCount reports the number of threads currently queued, useful
// for tests asserting FIFO order and for Yield's "not a no-op" guarantee.
func (g *GIL) WaitingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waitq)
}

// dispatchLocked picks the next waiter if the GIL is free. Caller must hold g.mu.
func (g *GIL) dispatchLocked() {
	if g.owner != nil || len(g.waitq) == 0 {
		return
	}
	next := g.waitq[0]
	g.waitq = g.waitq[1:]
	g.owner = next
	next.state = stateRunning

	for _, o := range g.observers {
		o.DidSchedule(next.id)
	}
	g.cond.Broadcast()
}
