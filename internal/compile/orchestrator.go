package compile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/sandbox"
	"tonyukuk-playground/internal/workspace"
)

// Outcome is what one compiler invocation left behind.
type Outcome struct {
	ExitCode       int
	Stdout         []byte
	Stderr         []byte
	ArtifactExists bool
	ArtifactSize   int64
	IR             []byte
	Duration       time.Duration
}

// Succeeded reports whether the compiler exited with status zero.
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0
}

// Diagnostic returns the compiler's stderr, else its stdout, else fallback.
func (o *Outcome) Diagnostic(fallback string) string {
	if s := strings.TrimSpace(string(o.Stderr)); s != "" {
		return string(o.Stderr)
	}
	if s := strings.TrimSpace(string(o.Stdout)); s != "" {
		return string(o.Stdout)
	}
	return fallback
}

// Orchestrator writes the source into a workspace and runs the compiler on it.
type Orchestrator struct {
	compilerPath string
	timeout      time.Duration
	runner       sandbox.CommandRunner
}

func NewOrchestrator(compilerPath string, timeout time.Duration, runner sandbox.CommandRunner) *Orchestrator {
	return &Orchestrator{
		compilerPath: compilerPath,
		timeout:      timeout,
		runner:       runner,
	}
}

// Args builds the compiler argument vector for req in ws.
func (o *Orchestrator) Args(ws *workspace.Workspace, req Request) []string {
	args := []string{ws.SourcePath, "-o", ws.ArtifactPath}

	if req.Backend == BackendLLVM && req.Target == TargetHost {
		args = append(args, "--backend=llvm")
		if flag := req.Optimization.Flag(); flag != "" {
			args = append(args, flag)
		}
		if req.EmitIR {
			args = append(args, "--emit-llvm")
		}
	}

	if req.Target == TargetWasm {
		args = append(args, "--backend=llvm", "-hedef", "wasm")
	}

	return args
}

// Compile runs the compiler once. A non-zero exit is not an error: the
// returned Outcome carries the status and the diagnostic text. Cancellation
// of ctx is ignored; values such as the active span are kept.
func (o *Orchestrator) Compile(ctx context.Context, ws *workspace.Workspace, req Request) (*Outcome, error) {
	if err := os.WriteFile(ws.SourcePath, []byte(req.Code), 0o644); err != nil { // #nosec G306 -- compiler reads it under the service account
		return nil, fmt.Errorf("writing source: %w", err)
	}

	// Only the compile budget ends a compile; a departed client does not.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	res, err := o.runner.Run(ctx, sandbox.Command{
		Path: o.compilerPath,
		Args: o.Args(ws, req),
		Dir:  ws.Dir,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) {
			return nil, ErrCompileTimeout
		}
		return nil, fmt.Errorf("running compiler: %w", err)
	}

	out := &Outcome{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}

	log.Debug().
		Str("workspace", ws.Name()).
		Str("backend", req.Backend.String()).
		Str("target", req.Target.String()).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("compiler finished")

	if !out.Succeeded() {
		return out, nil
	}

	if info, err := os.Stat(ws.ArtifactPath); err == nil {
		out.ArtifactExists = true
		out.ArtifactSize = info.Size()
	}

	if req.WantsIR() {
		ir, err := os.ReadFile(ws.IRPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return out, ErrIRMissing
			}
			return out, fmt.Errorf("reading IR: %w", err)
		}
		out.IR = ir
	}

	return out, nil
}
