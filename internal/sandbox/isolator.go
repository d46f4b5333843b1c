package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/config"
)

// timeoutExitCode is what coreutils timeout(1) exits with when it had to
// stop the program.
const timeoutExitCode = 124

// RunSpec is one supervised execution of a compiled program.
type RunSpec struct {
	ExecID  string
	Binary  string // absolute host path of the artifact
	WorkDir string
	Timeout time.Duration // budget of the program itself
	Grace   time.Duration // extra time the harness gets before it is killed
}

// RunResult is the raw output of a supervised run.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool // the supervisor stopped the program at its budget
}

// Isolator runs an untrusted binary under a restricted identity. Run returns
// ErrTimeout when the harness itself overruns Timeout+Grace; a program that
// is stopped by its supervisor on time is reported through RunResult.TimedOut.
type Isolator interface {
	Name() string
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
	Close() error
}

// NewIsolator builds the isolator named by sandbox.isolator.
func NewIsolator(ctx context.Context, cfg *config.Config, runner CommandRunner) (Isolator, error) {
	var (
		iso Isolator
		err error
	)
	switch cfg.Sandbox.Isolator {
	case "", "sudo":
		iso, err = NewSudoIsolator(cfg.Sandbox, runner)
	case "docker":
		iso, err = NewDockerIsolator(ctx, cfg.Sandbox, runner)
	case "containerd":
		iso, err = NewContainerdIsolator(ctx, cfg.Sandbox)
	default:
		return nil, fmt.Errorf("%w %q: must be sudo, docker, or containerd", ErrUnknownIsolator, cfg.Sandbox.Isolator)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("isolator", iso.Name()).Msg("execution isolator ready")
	return iso, nil
}
