package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"tonyukuk-playground/internal/config"
)

// SudoIsolator drops privileges by shelling out to a supervisor command line,
// by default `timeout N sudo -u <user> env -i PATH=<path> <bin>`. All programs
// share one pre-provisioned account; the kernel keeps their processes apart.
type SudoIsolator struct {
	template []string
	user     string
	pathEnv  string
	runner   CommandRunner
}

func NewSudoIsolator(cfg config.SandboxConfig, runner CommandRunner) (*SudoIsolator, error) {
	fields, err := shlex.Split(cfg.CommandTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing command template: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("command template: %w", ErrEmptyCommand)
	}
	if runner == nil {
		runner = NewExecRunner(cfg.CaptureLimit)
	}

	return &SudoIsolator{
		template: fields,
		user:     cfg.User,
		pathEnv:  cfg.PathEnv,
		runner:   runner,
	}, nil
}

func (s *SudoIsolator) Name() string { return "sudo" }

func (s *SudoIsolator) Close() error { return nil }

// Argv expands the template for one run. Placeholders are replaced after the
// template is split, so a path never changes the number of arguments.
func (s *SudoIsolator) Argv(spec RunSpec) []string {
	r := strings.NewReplacer(
		"{timeout}", formatSeconds(spec.Timeout),
		"{user}", s.user,
		"{path}", s.pathEnv,
		"{bin}", spec.Binary,
		"{workdir}", spec.WorkDir,
	)

	argv := make([]string, len(s.template))
	for i, field := range s.template {
		argv[i] = r.Replace(field)
	}
	return argv
}

func (s *SudoIsolator) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	argv := s.Argv(spec)

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout+spec.Grace)
	defer cancel()

	res, err := s.runner.Run(runCtx, Command{
		Path: argv[0],
		Args: argv[1:],
		Dir:  spec.WorkDir,
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return partialResult(res), ErrTimeout
		}
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "supervisor", Err: err}
	}

	return &RunResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: res.ExitCode == timeoutExitCode,
	}, nil
}

func partialResult(res *CommandResult) *RunResult {
	if res == nil {
		return &RunResult{ExitCode: -1, TimedOut: true}
	}
	return &RunResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: true,
	}
}

// formatSeconds renders a duration the way timeout(1) accepts it: "5", "0.5".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
