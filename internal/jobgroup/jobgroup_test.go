package jobgroup

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridiculousfish/fish-shell/internal/config"
)

func newTestManager(mode config.JobControlMode) *Manager {
	return NewManager(mode, os.Getpid(), os.Args[0], nil)
}

// TestResolveTopLevelAllocatesJobID is a function.
func TestResolveTopLevelAllocatesJobID(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	jg := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: false})
	assert.False(t, jg.IsInternal())
	assert.Equal(t, 1, jg.ID())
}

// TestResolveSingleInternalForegroundIsInternalGroup is a function.
func TestResolveSingleInternalForegroundIsInternalGroup(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	jg := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: true})
	assert.True(t, jg.IsInternal())
	assert.Equal(t, internalJobID, jg.ID())
}

// TestResolveBackgroundAlwaysNewGroup is a function.
func TestResolveBackgroundAlwaysNewGroup(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	parent := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: false})
	child := m.Resolve(LaunchSpec{Parent: parent, Background: true, ProcessCount: 1, FirstIsInternal: false})
	assert.NotSame(t, parent, child)
}

// TestResolveInheritsUsableParent is a function.
func TestResolveInheritsUsableParent(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	parent := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: false})
	child := m.Resolve(LaunchSpec{Parent: parent, ProcessCount: 1, FirstIsInternal: false})
	assert.Same(t, parent, child)
}

// TestResolveInternalParentUnusableGetsNewGroup is a function: a parent
// that is the "internal" sentinel group cannot be reused unless the
// child also qualifies as a lone internal stage.
func TestResolveInternalParentUnusableGetsNewGroup(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	parent := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: true})
	require.True(t, parent.IsInternal())

	child := m.Resolve(LaunchSpec{Parent: parent, ProcessCount: 2, FirstIsInternal: false, CanUseParentInternal: false})
	assert.NotSame(t, parent, child)
	assert.Equal(t, 1, child.ID())
}

// TestResolveInternalParentUsableByExplicitFlag is a function.
func TestResolveInternalParentUsableByExplicitFlag(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	parent := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: true})
	child := m.Resolve(LaunchSpec{Parent: parent, ProcessCount: 1, FirstIsInternal: true, CanUseParentInternal: true})
	assert.Same(t, parent, child)
}

// TestJobIDsStrictlyIncreaseBeyondLiveMax is a function (spec §8 "job id
// uniqueness"): freeing job 1 does not make the next allocation reuse
// it if a higher id is still live.
func TestJobIDsStrictlyIncreaseBeyondLiveMax(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	j1 := m.Resolve(LaunchSpec{ProcessCount: 1})
	j2 := m.Resolve(LaunchSpec{ProcessCount: 1})
	require.Equal(t, 1, j1.ID())
	require.Equal(t, 2, j2.ID())

	require.NoError(t, m.Destroy(j1))

	j3 := m.Resolve(LaunchSpec{ProcessCount: 1})
	assert.Equal(t, 3, j3.ID())
}

// TestJobIDsReuseAfterAllFreed is a function.
func TestJobIDsReuseAfterAllFreed(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	j1 := m.Resolve(LaunchSpec{ProcessCount: 1})
	require.NoError(t, m.Destroy(j1))

	j2 := m.Resolve(LaunchSpec{ProcessCount: 1})
	assert.Equal(t, 1, j2.ID())
}

// TestResolveNoJobControlGivesInternalFirstProcessFishPgid is a function.
func TestResolveNoJobControlGivesInternalFirstProcessFishPgid(t *testing.T) {
	m := newTestManager(config.JobControlNone)
	jg := m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: true})
	pgid, ok := jg.Pgid()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pgid)
	assert.False(t, jg.WantsJobControl())
}

// TestResolveWantsTerminalGivesInternalFirstProcessFishPgid is a function.
func TestResolveWantsTerminalGivesInternalFirstProcessFishPgid(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	jg := m.Resolve(LaunchSpec{ProcessCount: 2, FirstIsInternal: true, WantsTerminal: true})
	pgid, ok := jg.Pgid()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pgid)
}

// TestSetPgidTwicePanics is a function: the pgid-once-set invariant.
func TestSetPgidTwicePanics(t *testing.T) {
	jg := &JobGroup{}
	jg.setPgid(100)
	assert.Panics(t, func() {
		jg.setPgid(200)
	})
}

// TestPrepareCmdForGroupSkippedWhenJobControlOff is a function.
func TestPrepareCmdForGroupSkippedWhenJobControlOff(t *testing.T) {
	jg := &JobGroup{wantsJobControl: false}
	cmd := exec.Command("true")
	PrepareCmdForGroup(cmd, jg)
	assert.Nil(t, cmd.SysProcAttr)
}

// TestPrepareCmdForGroupJoinsExistingPgid is a function.
func TestPrepareCmdForGroupJoinsExistingPgid(t *testing.T) {
	jg := &JobGroup{wantsJobControl: true}
	jg.setPgid(4242)
	cmd := exec.Command("true")
	PrepareCmdForGroup(cmd, jg)
	require.NotNil(t, cmd.SysProcAttr)
	assert.Equal(t, 4242, cmd.SysProcAttr.Pgid)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

// TestJobsSnapshotIsSortedAndExcludesInternal is a function.
func TestJobsSnapshotIsSortedAndExcludesInternal(t *testing.T) {
	m := newTestManager(config.JobControlFull)
	m.Resolve(LaunchSpec{ProcessCount: 1})
	m.Resolve(LaunchSpec{ProcessCount: 1, FirstIsInternal: true}) // internal, not tracked
	m.Resolve(LaunchSpec{ProcessCount: 1})

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, 1, jobs[0].ID())
	assert.Equal(t, 2, jobs[1].ID())
}
