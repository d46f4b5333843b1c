// Package sandbox executes compiled programs under a restricted identity and
// bounds them in time and output.
package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Markers appended to or substituted for program output.
const (
	TimeoutMarker  = "[Zaman asimi]"
	NoOutputMarker = "(Cikti yok)"
)

// Outcome is the result of one execution as shown to the caller.
type Outcome struct {
	CombinedOutput string
	TimedOut       bool
	ExitCode       int
}

// Sandbox runs native artifacts through an Isolator.
type Sandbox struct {
	isolator Isolator
	timeout  time.Duration
	grace    time.Duration
}

func New(isolator Isolator, timeout, grace time.Duration) *Sandbox {
	return &Sandbox{
		isolator: isolator,
		timeout:  timeout,
		grace:    grace,
	}
}

// Execute marks binary executable and runs it with workDir as its working
// directory. When the harness overruns, the returned outcome carries only the
// timeout marker and the error is ErrTimeout. Cancellation of ctx is ignored.
func (s *Sandbox) Execute(ctx context.Context, execID, binary, workDir string) (*Outcome, error) {
	if err := os.Chmod(binary, 0o755); err != nil { // #nosec G302 -- the sandbox account must be able to exec it
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrArtifactNotFound
		}
		return nil, &ExecutionError{ExecID: execID, Op: "chmod_artifact", Err: err}
	}

	// The harness deadline is the only way a run ends early.
	res, err := s.isolator.Run(context.WithoutCancel(ctx), RunSpec{
		ExecID:  execID,
		Binary:  binary,
		WorkDir: workDir,
		Timeout: s.timeout,
		Grace:   s.grace,
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return &Outcome{CombinedOutput: TimeoutMarker, TimedOut: true, ExitCode: -1}, ErrTimeout
		}
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			return nil, err
		}
		return nil, &ExecutionError{ExecID: execID, Op: "run", Err: err}
	}

	return Combine(res), nil
}

// Combine concatenates stdout then stderr; the streams are not interleaved.
func Combine(res *RunResult) *Outcome {
	var b strings.Builder
	b.Grow(len(res.Stdout) + len(res.Stderr) + len(TimeoutMarker) + 1)
	b.Write(res.Stdout)
	b.Write(res.Stderr)
	if res.TimedOut {
		b.WriteString("\n" + TimeoutMarker)
	}

	out := b.String()
	if strings.TrimSpace(out) == "" {
		out = NoOutputMarker
	}

	return &Outcome{
		CombinedOutput: out,
		TimedOut:       res.TimedOut,
		ExitCode:       res.ExitCode,
	}
}
