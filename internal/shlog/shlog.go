// Package shlog wires up the logger shared by every concurrency-core
// component: the GIL, the job-group manager, the chdir serializer, and
// the buffer-fill threads all take a *logrus.Entry at construction.
package shlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// BuildInfo carries the static fields stamped onto every log line,
// the way lazydocker stamps version/commit/buildDate.
type BuildInfo struct {
	Debug     bool
	Version   string
	Commit    string
	BuildDate string
	ConfigDir string
}

// New returns a logger pre-loaded with BuildInfo's fields. In debug mode
// it writes JSON lines to <ConfigDir>/development.log; otherwise it
// discards all output, matching the teacher's
// newDevelopmentLogger/newProductionLogger split.
func New(info BuildInfo) *logrus.Entry {
	var log *logrus.Logger
	if info.Debug || os.Getenv("DEBUG") == "TRUE" {
		log = newDevelopmentLogger(info)
	} else {
		log = newProductionLogger()
	}

	log.Formatter = &logrus.JSONFormatter{}

	return log.WithFields(logrus.Fields{
		"debug":     info.Debug,
		"version":   info.Version,
		"commit":    info.Commit,
		"buildDate": info.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger(info BuildInfo) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(getLogLevel())

	dir := info.ConfigDir
	if dir == "" {
		dir = "."
	}
	file, err := os.OpenFile(filepath.Join(dir, "development.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file, falling back to stderr")
		log.SetOutput(os.Stderr)
		return log
	}
	log.SetOutput(file)
	return log
}

func newProductionLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(logrus.ErrorLevel)
	return log
}
