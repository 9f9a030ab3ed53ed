// Package jobgroup implements the Job Group and Pgid Owner machinery
// of spec §4.5 and §3 "Job Group": job-id allocation, the
// new-group-vs-inherit decision table, and forking a short-lived
// process whose only job is to hold a pgid open for later children.
//
// Grounded on pkg/commands/os.go's Kill/PrepareForChildren (itself
// wrapping github.com/jesseduffield/kill), re-targeted from "kill a
// docker-compose subprocess tree" to "kill/prepare a fish job group's
// process group." Pgid-owner-fork mechanics cross-checked against
// other_examples/a6ba6961_canonical-lxd__lxd-main_forkexec.go.go and
// other_examples/e897a9f4_714269cc-go_02__src-syscall-exec_unix.go.go.
package jobgroup

import (
	"os/exec"
	"sync"
	"syscall"

	"github.com/jesseduffield/kill"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/config"
	"github.com/ridiculousfish/fish-shell/internal/shellerr"
)

// PgidOwnerArg is the hidden CLI argument a self-exec'd pgid-owner
// process is invoked with. cmd/fish checks for this at the very top of
// main and exits immediately after setpgid(self,self) happens as a side
// effect of SysProcAttr.Setpgid.
const PgidOwnerArg = "--internal-pgid-owner"

// internalJobID is the sentinel job id for an "internal" job group:
// no job id, no pgid, a single fish-internal process not backgrounded.
const internalJobID = -1

// JobGroup is fish's process-group abstraction (spec §3).
type JobGroup struct {
	mu sync.Mutex

	id              int
	wantsJobControl bool
	wantsTerminal   bool
	isInternal      bool
	pgid            *int
	ownsPgid        bool
	ownerCmd        *exec.Cmd
	reaped          bool
}

// ID returns the job id, or the internal sentinel.
func (jg *JobGroup) ID() int { return jg.id }

// IsInternal reports whether this is an "internal" job group (no job
// id, no pgid allocated by default).
func (jg *JobGroup) IsInternal() bool { return jg.isInternal }

// WantsJobControl reports whether processes in this group should be
// given their own pgid at all (false under `status job-control none`).
func (jg *JobGroup) WantsJobControl() bool { return jg.wantsJobControl }

// Pgid returns the group's process-group id and whether one has been assigned.
func (jg *JobGroup) Pgid() (int, bool) {
	jg.mu.Lock()
	defer jg.mu.Unlock()
	if jg.pgid == nil {
		return 0, false
	}
	return *jg.pgid, true
}

// OwnsPgid reports whether fish forked a placeholder process to hold
// this group's pgid open (spec §3 "owns_pgid").
func (jg *JobGroup) OwnsPgid() bool {
	jg.mu.Lock()
	defer jg.mu.Unlock()
	return jg.ownsPgid
}

// setPgid assigns the group's pgid exactly once; the spec invariant is
// "a job group's pgid, once set, never changes."
func (jg *JobGroup) setPgid(pgid int) {
	jg.mu.Lock()
	defer jg.mu.Unlock()
	if jg.pgid != nil {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "job group pgid set twice"))
	}
	jg.pgid = &pgid
}

// AdoptExternalPgid records the pgid of the first real (forked) child
// of this group, when no pgid-owner fork was needed because the first
// process is already an external process fish can key the group's pgid
// off of.
func (jg *JobGroup) AdoptExternalPgid(pid int) {
	jg.setPgid(pid)
}

// LaunchSpec describes the pipeline about to launch, enough to drive
// the §4.5 decision table.
type LaunchSpec struct {
	// Parent is the enclosing job group, or nil at the top level.
	Parent *JobGroup
	// Background is true for `cmd &`.
	Background bool
	// ProcessCount is the number of pipeline stages about to launch.
	ProcessCount int
	// InternalCount is how many of those stages are fish-internal
	// (functions/builtins run as Script-Threads, not exec'd children).
	InternalCount int
	// FirstIsInternal is true when stage 0 is fish-internal.
	FirstIsInternal bool
	// WantsTerminal is true when the first process must own the
	// controlling terminal.
	WantsTerminal bool
	// CanUseParentInternal is true when this job could reuse an
	// "internal" parent group (itself also a single internal stage).
	CanUseParentInternal bool
	// ConcurrentEnabled mirrors the `concurrent` feature flag (spec §6).
	ConcurrentEnabled bool
}

// Manager allocates job ids, applies the decision table, and owns the
// pgid-owner fork/kill/reap lifecycle.
type Manager struct {
	mu       sync.Mutex
	jobs     map[int]*JobGroup
	mode     config.JobControlMode
	fishPgid int
	selfExe  string
	log      *logrus.Entry
}

// NewManager creates a job-group manager. selfExe is the path used to
// self-exec a pgid-owner placeholder (os.Args[0] or os.Executable());
// fishPgid is the shell's own process-group id.
func NewManager(mode config.JobControlMode, fishPgid int, selfExe string, log *logrus.Entry) *Manager {
	return &Manager{
		jobs:     make(map[int]*JobGroup),
		mode:     mode,
		fishPgid: fishPgid,
		selfExe:  selfExe,
		log:      log,
	}
}

// SetMode changes the job-control mode (the `status job-control` builtin).
func (m *Manager) SetMode(mode config.JobControlMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

func (m *Manager) Mode() config.JobControlMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Resolve applies spec §4.5's decision table and returns the JobGroup
// the launching pipeline should use.
func (m *Manager) Resolve(spec LaunchSpec) *JobGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	parentUsable := spec.Parent != nil && !(spec.Parent.isInternal && !spec.CanUseParentInternal)
	if parentUsable && !spec.Background {
		return spec.Parent
	}

	jg := &JobGroup{
		wantsJobControl: m.mode != config.JobControlNone,
		wantsTerminal:   spec.WantsTerminal,
	}

	if spec.ProcessCount == 1 && spec.FirstIsInternal && !spec.Background {
		jg.isInternal = true
		jg.id = internalJobID
	} else {
		jg.id = m.allocateIDLocked()
		m.jobs[jg.id] = jg
	}

	if spec.FirstIsInternal && (m.mode == config.JobControlNone || spec.WantsTerminal) {
		jg.setPgid(m.fishPgid)
	}

	if spec.ConcurrentEnabled && jg.pgid == nil && spec.ProcessCount >= 2 && spec.InternalCount >= 1 {
		if err := m.forkPgidOwnerLocked(jg); err != nil && m.log != nil {
			m.log.WithError(err).Warn("jobgroup: pgid-owner fork failed; pipeline degrades to per-process pgids")
		}
	}

	return jg
}

// allocateIDLocked returns the smallest id strictly greater than every
// currently live job id (spec §8 "job id uniqueness").
func (m *Manager) allocateIDLocked() int {
	if len(m.jobs) == 0 {
		return 1
	}
	return lo.Max(lo.Keys(m.jobs)) + 1
}

// forkPgidOwnerLocked implements spec §4.5's "concurrent pipeline with
// internal processes" rule: fork a throwaway self-exec'd child that
// immediately setpgid(self,self)s and exits, and adopt its pid as the
// group's pgid.
func (m *Manager) forkPgidOwnerLocked(jg *JobGroup) error {
	cmd := exec.Command(m.selfExe, PgidOwnerArg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return shellerr.New(shellerr.CodeForkFailure, err.Error())
	}

	jg.mu.Lock()
	jg.ownsPgid = true
	jg.ownerCmd = cmd
	jg.mu.Unlock()
	jg.setPgid(cmd.Process.Pid)
	return nil
}

// PrepareCmdForGroup arranges for an external stage's *exec.Cmd to join
// jg's process group once started. If jg already has a pgid (an owner
// fork, or a prior sibling stage), the new process joins it directly;
// otherwise it is prepared to become the group's own pgid holder
// (kill.PrepareForChildren), matching the degrade path in spec §4.5's
// failure semantics.
func PrepareCmdForGroup(cmd *exec.Cmd, jg *JobGroup) {
	if !jg.WantsJobControl() {
		return
	}
	if pgid, ok := jg.Pgid(); ok {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
		return
	}
	kill.PrepareForChildren(cmd)
}

// AdoptStartedCmd records cmd's pid as jg's pgid if jg doesn't have one
// yet, after cmd.Start() has returned (so the kernel has assigned its
// pgid per PrepareCmdForGroup's Setpgid).
func AdoptStartedCmd(cmd *exec.Cmd, jg *JobGroup) {
	if _, ok := jg.Pgid(); ok {
		return
	}
	jg.AdoptExternalPgid(cmd.Process.Pid)
}

// Kill sends sig to every process in jg's group via its kill(2) -pgid
// form.
func (jg *JobGroup) Kill(sig syscall.Signal) error {
	pgid, ok := jg.Pgid()
	if !ok {
		return shellerr.New(shellerr.CodeForkFailure, "job group has no pgid to signal")
	}
	return syscall.Kill(-pgid, sig)
}

// Destroy tears the group down: removes it from the manager's live-job
// table and, if fish owns the group's pgid, reaps the placeholder
// exactly once via waitpid (spec §3 "must be reaped exactly once").
func (m *Manager) Destroy(jg *JobGroup) error {
	m.mu.Lock()
	if !jg.isInternal {
		delete(m.jobs, jg.id)
	}
	m.mu.Unlock()

	jg.mu.Lock()
	defer jg.mu.Unlock()
	if jg.ownsPgid && !jg.reaped {
		jg.reaped = true
		if err := jg.ownerCmd.Wait(); err != nil {
			if _, isExit := err.(*exec.ExitError); !isExit {
				return shellerr.Wrap(err)
			}
		}
	}
	return nil
}

// Abort force-kills a group's pgid-owner placeholder (used when a
// SIGINT must tear the whole pipeline down rather than waiting for a
// natural exit), the way pkg/commands/os.go's Kill kills a
// docker-compose process tree.
func (jg *JobGroup) Abort() error {
	jg.mu.Lock()
	cmd := jg.ownerCmd
	owns := jg.ownsPgid
	jg.mu.Unlock()
	if !owns || cmd == nil {
		return nil
	}
	return kill.Kill(cmd)
}

// Jobs returns a stable-ordered snapshot of every live (non-internal)
// job group, for the `jobs` builtin.
func (m *Manager) Jobs() []*JobGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := lo.Keys(m.jobs)
	return lo.Map(sortedInts(ids), func(id int, _ int) *JobGroup {
		return m.jobs[id]
	})
}

func sortedInts(xs []int) []int {
	out := append([]int(nil), xs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
