package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/integrii/flaggy"
	yaml "github.com/jesseduffield/yaml"
	"github.com/samber/lo"

	"github.com/ridiculousfish/fish-shell/internal/config"
	"github.com/ridiculousfish/fish-shell/internal/cwd"
	"github.com/ridiculousfish/fish-shell/internal/jobgroup"
	"github.com/ridiculousfish/fish-shell/internal/parser"
	"github.com/ridiculousfish/fish-shell/internal/shell"
	"github.com/ridiculousfish/fish-shell/internal/shlog"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	printConfigFlag bool
	debuggingFlag   bool
	commandFlag     string
	jobControlFlag  string
	noConcurrent    bool
)

func main() {
	// A pgid-owner placeholder self-execs with this argument; its only
	// job is the setpgid(self, self) that SysProcAttr.Setpgid already
	// performed before this process's first instruction ran.
	if len(os.Args) > 1 && os.Args[1] == jobgroup.PgidOwnerArg {
		os.Exit(0)
	}

	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("fish")
	flaggy.SetDescription("a concurrent, cooperatively scheduled shell core")
	flaggy.Bool(&printConfigFlag, "p", "print-config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "a boolean")
	flaggy.String(&commandFlag, "c", "command", "Run a single pipeline and exit")
	flaggy.String(&jobControlFlag, "j", "job-control", "Job control mode: full, interactive, or none")
	flaggy.Bool(&noConcurrent, "", "no-concurrent", "Disable the concurrent Script-Thread feature flag")
	flaggy.SetVersion(info)
	flaggy.Parse()

	if printConfigFlag {
		encoded, err := yaml.Marshal(config.GetDefaultConfig())
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%s\n", string(encoded))
		os.Exit(0)
	}

	appConfig, err := config.NewAppConfig("fish", version, commit, date, debuggingFlag)
	if err != nil {
		log.Fatal(err.Error())
	}

	mode := appConfig.UserConfig.JobControl
	if jobControlFlag != "" {
		mode = config.JobControlMode(jobControlFlag)
		appConfig.UserConfig.JobControl = mode
	}
	concurrent := appConfig.UserConfig.Concurrent && !noConcurrent

	logEntry := shlog.New(shlog.BuildInfo{
		Debug:     appConfig.Debug,
		Version:   version,
		Commit:    commit,
		BuildDate: date,
		ConfigDir: appConfig.ConfigDir,
	})

	selfExe, err := os.Executable()
	if err != nil {
		selfExe = os.Args[0]
	}

	cwdPath, err := os.Getwd()
	if err != nil {
		logEntry.WithError(err).Fatal("fish: cannot determine initial working directory")
	}

	jobs := jobgroup.NewManager(mode, syscall.Getpgrp(), selfExe, logEntry)
	ser := cwd.New(logEntry)
	rt := parser.NewRuntime(logEntry, ser, cwdPath, jobs, mode)
	sh := shell.New(rt, logEntry, concurrent)

	root := rt.NewRootParser()
	root.Run()

	if commandFlag != "" {
		runLine(sh, root, commandFlag)
		status := root.Status()
		root.Release()
		root.Destroy()
		os.Exit(status)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		runLine(sh, root, line)
	}

	root.Release()
	root.Destroy()
}

// runLine parses one line into a pipeline and runs it, treating a
// trailing bare `&` token as the backgrounding operator (spec §6).
func runLine(sh *shell.Shell, p *parser.Parser, line string) {
	pipeline := shell.ParsePipeline(line)
	if len(pipeline) == 0 {
		return
	}

	background := false
	last := &pipeline[len(pipeline)-1]
	if n := len(last.Argv); n > 0 && last.Argv[n-1] == "&" {
		background = true
		last.Argv = last.Argv[:n-1]
	}

	if _, err := sh.Run(p, pipeline, background); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		version = revision.Value
		if len(version) > 7 {
			version = version[:7]
		}
	}
	if t, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); ok {
		date = t.Value
	}
}
