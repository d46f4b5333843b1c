package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/config"
)

// ContainerdIsolator runs the artifact as a containerd task with the OCI
// security profile and cgroup limits from this package.
type ContainerdIsolator struct {
	client       *Client
	image        string
	pathEnv      string
	limits       config.ResourceLimits
	captureLimit int64
}

func NewContainerdIsolator(ctx context.Context, cfg config.SandboxConfig) (*ContainerdIsolator, error) {
	client, err := NewClient(ctx, cfg.ContainerdSocket, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	if _, err := client.PullImage(ctx, cfg.Image); err != nil {
		_ = client.Close()
		return nil, err
	}

	c := &ContainerdIsolator{
		client:       client,
		image:        cfg.Image,
		pathEnv:      cfg.PathEnv,
		limits:       cfg.Limits,
		captureLimit: cfg.CaptureLimit,
	}

	cleaned, err := c.CleanupOrphaned(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to cleanup orphaned containers")
	} else if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned orphaned containers on startup")
	}

	return c, nil
}

func (c *ContainerdIsolator) Name() string { return "containerd" }

func (c *ContainerdIsolator) Close() error {
	return c.client.Close()
}

func (c *ContainerdIsolator) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	logger := log.With().Str("exec_id", spec.ExecID).Logger()

	if !c.client.Healthy(ctx) {
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "containerd", Err: ErrIsolatorDown}
	}

	harnessCtx, cancel := context.WithTimeout(c.client.WithNamespace(ctx), spec.Timeout+spec.Grace)
	defer cancel()

	image, err := c.client.PullImage(harnessCtx, c.image)
	if err != nil {
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "pull_image", Err: err}
	}

	container, err := c.createContainer(harnessCtx, containerPrefix+spec.ExecID, image, spec)
	if err != nil {
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "create_container", Err: err}
	}
	defer func() {
		if cleanErr := c.cleanupContainer(context.Background(), container); cleanErr != nil {
			logger.Error().Err(cleanErr).Msg("container cleanup failed")
		}
	}()

	stdout := newCappedBuffer(c.captureLimit)
	stderr := newCappedBuffer(c.captureLimit)

	task, err := container.NewTask(harnessCtx, cio.NewCreator(cio.WithStreams(nil, stdout, stderr)))
	if err != nil {
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "create_task", Err: err}
	}

	exitCh, err := task.Wait(harnessCtx)
	if err != nil {
		_, _ = task.Delete(context.Background(), containerd.WithProcessKill)
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "task_wait", Err: err}
	}
	if err := task.Start(harnessCtx); err != nil {
		_, _ = task.Delete(context.Background(), containerd.WithProcessKill)
		return nil, &ExecutionError{ExecID: spec.ExecID, Op: "task_start", Err: err}
	}

	budget := time.NewTimer(spec.Timeout)
	defer budget.Stop()

	result := &RunResult{}
	var harnessErr error

	select {
	case status := <-exitCh:
		result.ExitCode = int(status.ExitCode())
	case <-budget.C:
		logger.Warn().Dur("timeout", spec.Timeout).Msg("program exceeded its budget, killing task")
		c.kill(task, exitCh)
		result.ExitCode = timeoutExitCode
		result.TimedOut = true
	case <-harnessCtx.Done():
		c.kill(task, exitCh)
		result.ExitCode = -1
		result.TimedOut = true
		harnessErr = ErrTimeout
	}

	// Delete waits for the IO copiers, so the buffers are complete afterwards.
	if _, err := task.Delete(c.client.WithNamespace(context.Background()), containerd.WithProcessKill); err != nil {
		logger.Error().Err(err).Msg("task delete failed")
	}

	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()
	return result, harnessErr
}

func (c *ContainerdIsolator) kill(task containerd.Task, exitCh <-chan containerd.ExitStatus) {
	ctx, cancel := context.WithTimeout(c.client.WithNamespace(context.Background()), 5*time.Second)
	defer cancel()

	if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
		log.Error().Err(err).Str("task", task.ID()).Msg("failed to kill task")
		return
	}
	select {
	case <-exitCh:
	case <-ctx.Done():
	}
}

func (c *ContainerdIsolator) createContainer(
	ctx context.Context,
	id string,
	image containerd.Image,
	spec RunSpec,
) (containerd.Container, error) {
	container, err := c.client.Raw().NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithProcessArgs("/workspace/"+filepath.Base(spec.Binary)),
			oci.WithProcessCwd("/workspace"),
			oci.WithHostname("playground"),
			func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
				ApplySecurityProfile(s, DefaultSecurityProfile())
				ApplyResourceLimits(s, c.limits)

				s.Mounts = append(s.Mounts, specs.Mount{
					Destination: "/workspace",
					Type:        "bind",
					Source:      spec.WorkDir,
					Options:     []string{"rbind", "ro"},
				})
				s.Process.Env = []string{"PATH=" + c.pathEnv}
				return nil
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	return container, nil
}
