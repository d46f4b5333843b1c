package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/config"
	"tonyukuk-playground/pkg/seccomp"
)

const containerPrefix = "playground-"

// DockerIsolator runs the artifact in a throwaway container through the
// docker CLI. The workspace is bind-mounted read-only at /workspace and
// timeout(1) inside the image enforces the program budget.
type DockerIsolator struct {
	image       string
	pathEnv     string
	limits      config.ResourceLimits
	seccompPath string
	runner      CommandRunner
}

func NewDockerIsolator(ctx context.Context, cfg config.SandboxConfig, runner CommandRunner) (*DockerIsolator, error) {
	if runner == nil {
		runner = NewExecRunner(cfg.CaptureLimit)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := runner.Run(pingCtx, Command{Path: "docker", Args: []string{"info", "--format", "{{.ServerVersion}}"}})
	if err != nil {
		return nil, fmt.Errorf("%w: docker: %v", ErrIsolatorDown, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: docker daemon not reachable: %s", ErrIsolatorDown, strings.TrimSpace(string(res.Stderr)))
	}

	profile, err := seccomp.DockerProfileJSON()
	if err != nil {
		return nil, fmt.Errorf("rendering seccomp profile: %w", err)
	}
	f, err := os.CreateTemp("", "playground-seccomp-*.json")
	if err != nil {
		return nil, fmt.Errorf("writing seccomp profile: %w", err)
	}
	if _, err := f.Write(profile); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("writing seccomp profile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("writing seccomp profile: %w", err)
	}

	d := &DockerIsolator{
		image:       cfg.Image,
		pathEnv:     cfg.PathEnv,
		limits:      cfg.Limits,
		seccompPath: f.Name(),
		runner:      runner,
	}
	d.cleanupOrphans(ctx)
	return d, nil
}

func (d *DockerIsolator) Name() string { return "docker" }

func (d *DockerIsolator) Close() error {
	return os.Remove(d.seccompPath)
}

func (d *DockerIsolator) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	name := containerPrefix + spec.ExecID
	args := d.buildArgs(name, spec)

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout+spec.Grace)
	defer cancel()

	res, err := d.runner.Run(runCtx, Command{Path: "docker", Args: args})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			d.remove(name)
			return partialResult(res), ErrTimeout
		}
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "docker_run", Err: err}
	}

	// 125 means docker itself failed before the program ran.
	if res.ExitCode == 125 {
		return nil, &ExecutionError{
			ExecID: spec.ExecID,
			Op:     "docker_run",
			Err:    fmt.Errorf("%w: %s", ErrIsolatorDown, strings.TrimSpace(string(res.Stderr))),
		}
	}

	return &RunResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: res.ExitCode == timeoutExitCode,
	}, nil
}

func (d *DockerIsolator) buildArgs(name string, spec RunSpec) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"--read-only",
		"--user", fmt.Sprintf("%d:%d", containerUID, containerGID),
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--security-opt", "seccomp=" + d.seccompPath,
		"--env", "PATH=" + d.pathEnv,
		"--volume", spec.WorkDir + ":/workspace:ro",
		"--workdir", "/workspace",
	}
	args = append(args, DockerLimitArgs(d.limits)...)
	args = append(args,
		d.image,
		"timeout", formatSeconds(spec.Timeout),
		"/workspace/"+filepath.Base(spec.Binary),
	)
	return args
}

func (d *DockerIsolator) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := d.runner.Run(ctx, Command{Path: "docker", Args: []string{"rm", "-f", name}}); err != nil {
		log.Warn().Err(err).Str("container", name).Msg("failed to remove timed out container")
	}
}

// cleanupOrphans removes containers left behind by a previous process.
func (d *DockerIsolator) cleanupOrphans(ctx context.Context) {
	res, err := d.runner.Run(ctx, Command{
		Path: "docker",
		Args: []string{"ps", "-a", "--filter", "name=" + containerPrefix, "-q"},
	})
	if err != nil || res.ExitCode != 0 {
		return
	}
	for _, id := range strings.Fields(string(res.Stdout)) {
		log.Warn().Str("container_id", id).Msg("removing orphaned playground container")
		d.remove(id)
	}
}
