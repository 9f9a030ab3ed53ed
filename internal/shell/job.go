package shell

import (
	"github.com/ridiculousfish/fish-shell/internal/buffer"
	"github.com/ridiculousfish/fish-shell/internal/jobgroup"
)

// Job is a running or completed pipeline launch: spec §3's Job Group
// plus the bookkeeping Run needs to answer `jobs`/`wait`.
type Job struct {
	id    int
	group *jobgroup.JobGroup

	// Output collects the last stage's bytes (spec §4.6/§4.7: captured
	// through a Separated Buffer, via Buffer-Fill for external stages).
	Output *buffer.SeparatedBuffer

	pipestatus  []int
	finalStatus int
	done        chan struct{}
}

// ID returns the job id (spec §8 "job id uniqueness").
func (j *Job) ID() int { return j.id }

// Group returns the Job Group backing this job.
func (j *Job) Group() *jobgroup.JobGroup { return j.group }

// Done returns a channel closed once every stage has reached terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job completes and returns its per-stage exit codes.
func (j *Job) Wait() []int {
	<-j.done
	return append([]int(nil), j.pipestatus...)
}
