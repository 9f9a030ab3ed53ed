package cwd

import (
	"github.com/ridiculousfish/fish-shell/internal/sched"
	"github.com/ridiculousfish/fish-shell/internal/vars"
)

// Observer tracks each Script-Thread's logical $PWD using the
// Per-Thread Variable mechanism (spec §4.3), and uses the Chdir
// Serializer to fchdir the process whenever a thread actually changes
// directory.
type Observer struct {
	pwd *vars.PerThread[string]
	ser *Serializer
}

// NewObserver creates a CWD observer seeded with initial for the root
// thread. Register it with a GIL via AddObserver before any thread spawns.
func NewObserver(initial string, ser *Serializer) *Observer {
	return &Observer{pwd: vars.NewPerThread(initial), ser: ser}
}

func (o *Observer) DidSpawn(tid sched.ThreadID)       { o.pwd.DidSpawn(tid) }
func (o *Observer) WillDestroy(tid sched.ThreadID)    { o.pwd.WillDestroy(tid) }
func (o *Observer) DidSchedule(tid sched.ThreadID)    { o.pwd.DidSchedule(tid) }
func (o *Observer) WillUnschedule(tid sched.ThreadID) { o.pwd.WillUnschedule(tid) }

// Get returns the currently scheduled thread's logical $PWD.
func (o *Observer) Get() string { return o.pwd.Get() }

// SeedFor overrides a freshly spawned child's initial $PWD, used when a
// branch needs to seed something other than a plain snapshot of the
// parent's live value (the common case: inherit the parent's cwd, which
// DidSpawn already does automatically).
func (o *Observer) SeedFor(tid sched.ThreadID, path string) { o.pwd.SeedFor(tid, path) }

// Cd changes the calling (currently scheduled) thread's logical $PWD.
// It acquires the chdir serializer, so a directory that cannot be
// entered is reported as an error and leaves $PWD unchanged. The token
// is released before Cd returns, so the process-wide OS cwd may be
// changed again by another thread afterwards.
func (o *Observer) Cd(path string) error {
	tok, err := o.ser.Acquire(path)
	if err != nil {
		return err
	}
	defer o.ser.Release(tok)
	o.pwd.Set(path)
	return nil
}
