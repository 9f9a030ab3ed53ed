// Package shell wires the Parser, GIL, Job Group, Separated Buffer and
// Buffer-Fill layers together into the operations a user actually
// invokes: running a pipeline of mixed internal/external stages,
// backgrounding with `&`, the `jobs`/`wait` builtins, `status
// job-control`, and serialized execution of `fish_sync`-style
// configuration reloads (spec §4.5, §6, §9 open question on
// `fish_sync`).
//
// Grounded on pkg/commands/os.go's PipeCommands (goroutine-per-stage,
// StdoutPipe-into-next-Stdin wiring, a WaitGroup, stderr collection)
// generalized from "N external commands" to "N stages, any of which
// may be fish-internal," and on ExecutableFromString's use of
// mgutz/str.ToArgv for tokenizing.
package shell

import (
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/buffer"
	"github.com/ridiculousfish/fish-shell/internal/bufferfill"
	"github.com/ridiculousfish/fish-shell/internal/config"
	"github.com/ridiculousfish/fish-shell/internal/jobgroup"
	"github.com/ridiculousfish/fish-shell/internal/parser"
	"github.com/ridiculousfish/fish-shell/internal/shellerr"
)

// InternalFunc is a fish-internal pipeline stage: a builtin or function
// body run as a Script-Thread rather than exec'd. It receives the bytes
// piped in from the previous stage (nil for the first stage) and
// returns the bytes to hand to the next stage, plus an exit status.
type InternalFunc func(p *parser.Parser, stdin []byte) (output []byte, status int)

// Stage is one element of a pipeline: exactly one of Internal or Argv is set.
type Stage struct {
	Internal InternalFunc
	Argv     []string
}

// Tokenize splits a command string into argv the way
// OSCommand.ExecutableFromString does.
func Tokenize(line string) []string {
	return str.ToArgv(line)
}

// ParsePipeline splits `a | b | c` into external Stages by naive `|`
// splitting and mgutz/str tokenizing of each segment. This is not a
// fish-language parser (full parsing is out of this module's scope);
// it exists so tests and a minimal REPL can build pipelines without
// constructing Stage literals by hand.
func ParsePipeline(text string) []Stage {
	parts := strings.Split(text, "|")
	stages := make([]Stage, len(parts))
	for i, part := range parts {
		stages[i] = Stage{Argv: Tokenize(strings.TrimSpace(part))}
	}
	return stages
}

// Shell owns the live job table and the feature flags that drive
// Job Group resolution (spec §6 "concurrent" feature flag).
type Shell struct {
	rt         *parser.Runtime
	log        *logrus.Entry
	concurrent bool

	mu   sync.Mutex
	jobs map[int]*Job
}

// New creates a Shell bound to rt. concurrent mirrors spec §6's feature
// flag: when false, Run never forks a pgid owner for a pipeline with
// internal stages. It does not change branching: internal stages of a
// multi-stage or background pipeline still run on branched Parsers.
func New(rt *parser.Runtime, log *logrus.Entry, concurrent bool) *Shell {
	return &Shell{rt: rt, log: log, concurrent: concurrent, jobs: make(map[int]*Job)}
}

// StatusJobControl implements `status job-control <mode>`.
func (sh *Shell) StatusJobControl(mode config.JobControlMode) {
	sh.rt.SetJobControlMode(mode)
}

// Run launches pipeline on behalf of p, which must currently be
// scheduled. For a foreground pipeline (background == false), Run
// releases the GIL while the pipeline's processes run (spec §4.1
// "release before a syscall expected to block" — waitpid here) and
// re-acquires it before returning with p.Status()/p.Pipestatus() set.
// For a background pipeline, Run returns immediately; the caller
// remains scheduled and owns $status unaffected until a later `wait`.
func (sh *Shell) Run(p *parser.Parser, pipeline []Stage, background bool) (*Job, error) {
	if len(pipeline) == 0 {
		return nil, shellerr.New(shellerr.CodeSchedulingInvariant, "empty pipeline")
	}

	internalCount := 0
	for _, s := range pipeline {
		if s.Internal != nil {
			internalCount++
		}
	}
	firstInternal := pipeline[0].Internal != nil

	jg := sh.rt.Jobs.Resolve(jobgroup.LaunchSpec{
		Parent:               p.JobGroup(),
		Background:           background,
		ProcessCount:         len(pipeline),
		InternalCount:        internalCount,
		FirstIsInternal:      firstInternal,
		WantsTerminal:        !background && p.JobGroup() == nil,
		CanUseParentInternal: len(pipeline) == 1 && firstInternal,
		ConcurrentEnabled:    sh.concurrent,
	})

	job := &Job{
		id:         jg.ID(),
		group:      jg,
		Output:     buffer.New(0),
		pipestatus: make([]int, len(pipeline)),
		done:       make(chan struct{}),
	}

	if !jg.IsInternal() {
		sh.mu.Lock()
		sh.jobs[jg.ID()] = job
		sh.mu.Unlock()
	}

	readers := make([]io.Reader, len(pipeline))
	writers := make([]io.WriteCloser, len(pipeline))
	for i := 0; i < len(pipeline)-1; i++ {
		pr, pw := io.Pipe()
		writers[i] = pw
		readers[i+1] = pr
	}

	var wg sync.WaitGroup
	wg.Add(len(pipeline))

	for i, stage := range pipeline {
		i, stage := i, stage
		stdin := readers[i]
		stdout := writers[i]

		if stage.Internal != nil {
			if len(pipeline) == 1 && !background {
				// A lone foreground internal stage isn't a parallel
				// pipeline: it continues on the caller's own
				// Script-Thread rather than branching one (spec §4.5
				// "internal job group").
				out, status := stage.Internal(p, nil)
				job.pipestatus[i] = status
				job.Output.Append(out, buffer.Explicit)
				wg.Done()
				continue
			}
			child := p.Branch()
			child.SetJobGroup(jg)
			go sh.runInternalStage(child, stage, stdin, stdout, job, i, &wg)
			continue
		}

		cmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
		cmd.Dir = p.CWD()
		cmd.Stderr = os.Stderr
		if stdin != nil {
			cmd.Stdin = stdin
		}

		var fill *bufferfill.Fill
		if stdout != nil {
			cmd.Stdout = stdout
		} else {
			pr, pw := io.Pipe()
			cmd.Stdout = pw
			fill = bufferfill.New(pr, job.Output, sh.log)
			fill.Start()
		}

		jobgroup.PrepareCmdForGroup(cmd, jg)
		go sh.runExternalStage(cmd, stdout, fill, job, i, jg, &wg)
	}

	go func() {
		wg.Wait()
		last := job.pipestatus[len(job.pipestatus)-1]
		if !jg.IsInternal() {
			if err := sh.rt.Jobs.Destroy(jg); err != nil && sh.log != nil {
				sh.log.WithError(err).Warn("shell: error tearing down job group")
			}
			// A finished background job stays in the table (reported as
			// Done by Jobs) so a later Wait can still collect its status.
			if !background {
				sh.mu.Lock()
				delete(sh.jobs, jg.ID())
				sh.mu.Unlock()
			}
		}
		job.finalStatus = last
		close(job.done)
	}()

	if !background {
		p.Release()
		job.Wait()
		p.Run()
		p.SetPipestatus(append([]int(nil), job.pipestatus...))
		p.SetStatus(job.finalStatus)
	}

	return job, nil
}

// runInternalStage drives a freshly branched child Parser (not yet
// scheduled) through its Script-Thread lifecycle: run, execute the
// stage body, release, destroy. Used for every internal stage except
// the single-stage foreground case, which runs inline on the caller's
// own Parser instead of branching.
func (sh *Shell) runInternalStage(p *parser.Parser, stage Stage, stdin io.Reader, stdout io.WriteCloser, job *Job, idx int, wg *sync.WaitGroup) {
	defer wg.Done()

	p.Run()

	var in []byte
	if stdin != nil {
		in, _ = io.ReadAll(stdin)
	}

	out, status := stage.Internal(p, in)
	job.pipestatus[idx] = status
	p.SetStatus(status)

	p.Release()
	p.Destroy()

	if stdout != nil {
		stdout.Write(out)
		stdout.Close()
	} else {
		job.Output.Append(out, buffer.Explicit)
	}
}

func (sh *Shell) runExternalStage(cmd *exec.Cmd, stdout io.WriteCloser, fill *bufferfill.Fill, job *Job, idx int, jg *jobgroup.JobGroup, wg *sync.WaitGroup) {
	defer wg.Done()

	status := 0
	if err := cmd.Start(); err != nil {
		if sh.log != nil {
			sh.log.WithError(err).Warn("shell: failed to start pipeline stage")
		}
		status = -1
	} else {
		jobgroup.AdoptStartedCmd(cmd, jg)
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				status = exitErr.ExitCode()
			} else {
				status = -1
			}
		}
	}

	if stdout != nil {
		stdout.Close()
	} else if pw, ok := cmd.Stdout.(*io.PipeWriter); ok {
		pw.Close()
	}
	if fill != nil {
		fill.Wait()
	}

	job.pipestatus[idx] = status
}

// Wait implements the `wait` builtin: blocks p (GIL released) until
// jobID's Script-Threads all reach terminal state, then publishes the
// job's final status/pipestatus into p.
func (sh *Shell) Wait(p *parser.Parser, jobID int) ([]int, error) {
	sh.mu.Lock()
	job, ok := sh.jobs[jobID]
	sh.mu.Unlock()
	if !ok {
		return nil, shellerr.New(shellerr.CodeForkFailure, "wait: no such job")
	}

	p.Release()
	ps := job.Wait()
	p.Run()

	p.SetPipestatus(ps)
	p.SetStatus(job.finalStatus)
	return ps, nil
}

// JobInfo is one row of `jobs` builtin output.
type JobInfo struct {
	ID      int
	Pgid    int
	HasPgid bool
	Done    bool
}

// Jobs implements the `jobs` builtin: a stable-ordered snapshot of the
// job table, which holds every running job plus every background job
// that has finished (Done is then true).
func (sh *Shell) Jobs() []JobInfo {
	sh.mu.Lock()
	ids := make([]int, 0, len(sh.jobs))
	for id := range sh.jobs {
		ids = append(ids, id)
	}
	jobsByID := make(map[int]*Job, len(sh.jobs))
	for id, j := range sh.jobs {
		jobsByID[id] = j
	}
	sh.mu.Unlock()

	sort.Ints(ids)
	out := make([]JobInfo, 0, len(ids))
	for _, id := range ids {
		j := jobsByID[id]
		pgid, hasPgid := j.group.Pgid()
		done := false
		select {
		case <-j.done:
			done = true
		default:
		}
		out = append(out, JobInfo{ID: id, Pgid: pgid, HasPgid: hasPgid, Done: done})
	}
	return out
}

// RunSync serializes fn against every other Script-Thread by branching
// a dedicated Script-Thread, running fn while it holds the GIL without
// ever yielding, and tearing it down before returning — resolving the
// §9 open question of how `fish_sync` interacts with concurrent
// branches by treating it exactly like any single-stage internal
// pipeline. p must be scheduled on entry; it gives up the GIL while the
// child runs and holds it again when RunSync returns.
func (sh *Shell) RunSync(p *parser.Parser, fn func() error) error {
	child := p.Branch()
	p.Release()
	child.Run()
	err := fn()
	child.Release()
	child.Destroy()
	p.Run()
	return err
}
