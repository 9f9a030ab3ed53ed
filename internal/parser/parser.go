package parser

import (
	"github.com/ridiculousfish/fish-shell/internal/jobgroup"
	"github.com/ridiculousfish/fish-shell/internal/sched"
)

// Parser is the unit of script execution state (spec §3 "Parser"):
// owned by exactly one Script-Thread at a time, holding that thread's
// variable scope, job-group affiliation, and call-stack backtrace. CWD
// and $status/$pipestatus live in the Runtime's Per-Thread Variables
// instead of here, so their accessors stay correct across branch()
// without the Parser needing its own swap logic.
type Parser struct {
	rt     *Runtime
	thread *sched.Thread
	scope  *scope

	jobGroup  *jobgroup.JobGroup
	backtrace []string
}

// Thread returns the Script-Thread handle this Parser is affiliated with.
func (p *Parser) Thread() *sched.Thread { return p.thread }

// Run schedules this Parser's thread onto the GIL, blocking until it
// becomes owner (spec §4.1 suspension point "initial run").
func (p *Parser) Run() { p.rt.GIL.Run(p.thread) }

// Release gives up the GIL ahead of a blocking syscall (spec §4.1
// "release before a syscall expected to block").
func (p *Parser) Release() { p.rt.GIL.Release(p.thread) }

// Yield releases and immediately re-enqueues at the back of the FIFO,
// for cooperative yield points inside long-running constructs.
func (p *Parser) Yield() { p.rt.GIL.Yield(p.thread) }

// Destroy tears the Script-Thread down through the GIL. Precondition:
// the caller has already Released and will not Run again (spec §4.2
// "Termination contract").
func (p *Parser) Destroy() { p.rt.GIL.Destroy(p.thread) }

// IsScheduled reports whether this Parser's thread currently holds the GIL.
func (p *Parser) IsScheduled() bool { return p.rt.GIL.IsScheduled(p.thread) }

// CWD returns the logical working directory of the currently scheduled
// thread — valid to call only while p.IsScheduled().
func (p *Parser) CWD() string { return p.rt.CWD.Get() }

// Cd changes this thread's logical working directory, serialized
// against every other thread's chdir via the Chdir Serializer (spec §4.4).
func (p *Parser) Cd(path string) error { return p.rt.CWD.Cd(path) }

// Status returns $status for the currently scheduled thread.
func (p *Parser) Status() int { return p.rt.Status.Get() }

// SetStatus sets $status for the currently scheduled thread.
func (p *Parser) SetStatus(code int) { p.rt.Status.Set(code) }

// Pipestatus returns $pipestatus for the currently scheduled thread.
func (p *Parser) Pipestatus() []int { return p.rt.Pipestatus.Get() }

// SetPipestatus sets $pipestatus for the currently scheduled thread.
func (p *Parser) SetPipestatus(codes []int) { p.rt.Pipestatus.Set(codes) }

// JobGroup returns the job group this Parser's thread belongs to, if any.
func (p *Parser) JobGroup() *jobgroup.JobGroup { return p.jobGroup }

// SetJobGroup affiliates this Parser's thread with jg (set once per
// pipeline stage at launch time, by internal/shell).
func (p *Parser) SetJobGroup(jg *jobgroup.JobGroup) { p.jobGroup = jg }

// PushFrame records entry into a function/block for the backtrace.
func (p *Parser) PushFrame(name string) { p.backtrace = append(p.backtrace, name) }

// PopFrame records return from the innermost function/block.
func (p *Parser) PopFrame() {
	if len(p.backtrace) > 0 {
		p.backtrace = p.backtrace[:len(p.backtrace)-1]
	}
}

// Backtrace returns a snapshot of the current call stack, innermost last.
func (p *Parser) Backtrace() []string {
	return append([]string(nil), p.backtrace...)
}

// GetVar resolves name against the local/function seed first, falling
// back to the shared global table (spec §4.2 variable scope chain;
// universal variables are looked up explicitly via GetUniversal since
// fish keeps them in a distinct namespace from globals).
func (p *Parser) GetVar(name string) (string, bool) {
	if v, ok := p.scope.get(name); ok {
		return v, true
	}
	return p.rt.Globals.Get(name)
}

// GetUniversal looks up a universal variable.
func (p *Parser) GetUniversal(name string) (string, bool) {
	return p.rt.Universals.Get(name)
}

// SetLocal writes name into this Parser's own local scope, never the
// seed it may have inherited from a parent.
func (p *Parser) SetLocal(name, value string) { p.scope.set(name, value) }

// SetGlobal writes name into the runtime-wide global table, instantly
// visible to every other Script-Thread sharing this Runtime.
func (p *Parser) SetGlobal(name, value string) { p.rt.Globals.Set(name, value) }

// SetUniversal writes name into the universal-variable table.
func (p *Parser) SetUniversal(name, value string) { p.rt.Universals.Set(name, value) }

// LocalNames returns the union of this Parser's seeded and locally-set
// variable names, for `set -l` introspection.
func (p *Parser) LocalNames() []string { return p.scope.names() }

// Branch implements spec §4.2's `branch(parent) -> child_parser,
// child_thread`: it spawns a new Script-Thread (sharing this Runtime,
// hence the GIL, globals, functions, completions, key bindings, event
// handlers, and job-control mode), seeds the child's local/function
// scope read-only from the parent's current scope, inherits the
// parent's CWD via the CWD observer's default did_spawn snapshot, and
// resets $status and $pipestatus to zero/empty regardless of the
// parent's current values. Must be called while p is scheduled.
func (p *Parser) Branch() *Parser {
	child := p.rt.GIL.Spawn()

	p.rt.Status.SeedFor(child.ID(), 0)
	p.rt.Pipestatus.SeedFor(child.ID(), nil)

	return &Parser{
		rt:     p.rt,
		thread: child,
		scope: &scope{
			seed:  p.scope.seedForChild(),
			local: make(map[string]string),
		},
	}
}
