package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command describes one child process.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string // nil inherits the service environment
}

// CommandResult is what a finished (or killed) child left behind.
type CommandResult struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// CommandRunner starts a child process and waits for it. Implementations
// return ErrTimeout, together with whatever output was captured, when ctx
// expires before the child exits.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

// ExecRunner runs commands with os/exec. Each child gets its own process
// group so a deadline kills everything it spawned.
type ExecRunner struct {
	captureLimit int64
	waitDelay    time.Duration
}

func NewExecRunner(captureLimit int64) *ExecRunner {
	if captureLimit < 1 {
		captureLimit = 1 << 20
	}
	return &ExecRunner{
		captureLimit: captureLimit,
		waitDelay:    time.Second,
	}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (*CommandResult, error) {
	if c.Path == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...) // #nosec G204 -- argv is built internally, never from a shell string
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.WaitDelay = r.waitDelay
	setProcessGroup(cmd)

	stdout := newCappedBuffer(r.captureLimit)
	stderr := newCappedBuffer(r.captureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()

	res := &CommandResult{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if err != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			res.ExitCode = -1
			return res, ErrTimeout
		case context.Canceled:
			return nil, fmt.Errorf("%s: %w", c.Path, context.Canceled)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}

	return res, nil
}

// cappedBuffer keeps the first limit bytes and silently drops the rest, so a
// chatty child never blocks on a full pipe or fails with EPIPE.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
