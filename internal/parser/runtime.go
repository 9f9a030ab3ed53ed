// Package parser implements the Parser and Script-Thread ownership
// model of spec §4.2: the per-execution state container (variable
// scopes, CWD, status/pipestatus, job list, backtrace), and the
// branch() operation that produces subshells and parallel pipeline
// stages.
//
// Grounded on pkg/commands/runtime_types.go's shape (one small struct
// per concern, shared by the surrounding package rather than behind an
// interface), adapted from "container/image/volume runtime state" to
// "script execution state."
package parser

import (
	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/config"
	"github.com/ridiculousfish/fish-shell/internal/cwd"
	"github.com/ridiculousfish/fish-shell/internal/jobgroup"
	"github.com/ridiculousfish/fish-shell/internal/sched"
	"github.com/ridiculousfish/fish-shell/internal/vars"
)

// Runtime is the process-wide state every Parser shares by reference:
// the GIL, the per-thread CWD/status/pipestatus publishers, and the
// global/universal/function/completion/key-binding/event tables (spec
// §4.2 "shared by reference, not copied").
type Runtime struct {
	GIL *sched.GIL

	CWD        *cwd.Observer
	Status     *vars.PerThread[int]
	Pipestatus *vars.PerThread[[]int]

	Globals       *SharedMap[string]
	Universals    *SharedMap[string]
	Functions     *SharedMap[string]
	Completions   *SharedMap[[]string]
	KeyBindings   *SharedMap[string]
	EventHandlers *EventTable

	Jobs *jobgroup.Manager
	mode config.JobControlMode

	log *logrus.Entry
}

// NewRuntime wires a fresh Runtime: it creates the GIL and registers
// the CWD/status/pipestatus observers with it, so every subsequent
// Spawn (via NewRootParser or Branch) is tracked from the start.
func NewRuntime(log *logrus.Entry, ser *cwd.Serializer, initialCWD string, jobs *jobgroup.Manager, mode config.JobControlMode) *Runtime {
	gil := sched.New(log)
	cwdObserver := cwd.NewObserver(initialCWD, ser)
	status := vars.NewPerThread(0)
	pipestatus := vars.NewPerThread[[]int](nil)

	gil.AddObserver(cwdObserver)
	gil.AddObserver(status)
	gil.AddObserver(pipestatus)

	return &Runtime{
		GIL:           gil,
		CWD:           cwdObserver,
		Status:        status,
		Pipestatus:    pipestatus,
		Globals:       NewSharedMap[string](),
		Universals:    NewSharedMap[string](),
		Functions:     NewSharedMap[string](),
		Completions:   NewSharedMap[[]string](),
		KeyBindings:   NewSharedMap[string](),
		EventHandlers: NewEventTable(),
		Jobs:          jobs,
		mode:          mode,
		log:           log,
	}
}

// SetJobControlMode updates the runtime-wide job-control mode (the
// `status job-control` builtin) and propagates it to the job-group
// manager, which decides pgid allocation per spec §4.5.
func (rt *Runtime) SetJobControlMode(mode config.JobControlMode) {
	rt.mode = mode
	rt.Jobs.SetMode(mode)
}

func (rt *Runtime) JobControlMode() config.JobControlMode { return rt.mode }

// NewRootParser spawns the top-level Script-Thread (the interactive
// reader or a script run non-interactively) with an empty local scope.
func (rt *Runtime) NewRootParser() *Parser {
	t := rt.GIL.Spawn()
	return &Parser{rt: rt, thread: t, scope: newRootScope()}
}
