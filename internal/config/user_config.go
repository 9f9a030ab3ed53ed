package config

// JobControlMode names the three modes `status job-control` accepts
// (spec §6). The job-group manager distinguishes only "none" (jobs stay
// in fish's own pgid) from the other two: "interactive" is handled
// exactly like "full", whether or not the shell is interactive.
type JobControlMode string

const (
	JobControlFull        JobControlMode = "full"
	JobControlInteractive JobControlMode = "interactive"
	JobControlNone        JobControlMode = "none"
)

// UserConfig holds the yaml-backed, user-editable settings for the
// concurrency core. Follows the teacher's UserConfig shape
// (pkg/config/user_config.go): PascalCase fields, camelCase yaml tags,
// `omitempty` so a sparse user file doesn't clobber defaults on merge.
type UserConfig struct {
	// Concurrent is the feature flag from spec §6: when false the shell
	// never forks a pgid owner for a pipeline with internal stages. It
	// does not stop Parser branching: internal stages of multi-stage or
	// background pipelines still run on branched Script-Threads.
	Concurrent bool `yaml:"concurrent,omitempty"`

	// JobControl selects the §6 job-control mode.
	JobControl JobControlMode `yaml:"jobControl,omitempty"`

	// BufferLimit is a Separated Buffer byte limit (spec §4.6); 0 means
	// unlimited. It is loaded and saved but not read elsewhere: the
	// shell creates its output buffers with no limit.
	BufferLimit uint64 `yaml:"bufferLimit,omitempty"`

	// Interactive marks the shell as attached to a terminal. It is
	// loaded and saved but not read elsewhere; job-control decisions do
	// not depend on it.
	Interactive bool `yaml:"interactive,omitempty"`
}

// GetDefaultConfig returns hard-coded defaults, the way
// pkg/config/user_config.go's GetDefaultConfig seeds every zero-valued
// yaml field before a user's config.yml is merged in.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		Concurrent:  true,
		JobControl:  JobControlInteractive,
		BufferLimit: 100 * 1024 * 1024,
		Interactive: false,
	}
}
