package compile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonyukuk-playground/internal/sandbox"
	"tonyukuk-playground/internal/workspace"
)

// fakeCompiler writes a /bin/sh script standing in for tonyukuk-derle. It is
// invoked as: compiler <src> -o <out> [flags...]
func fakeCompiler(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tonyukuk-derle")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func acquire(t *testing.T, layout workspace.Layout) *workspace.Workspace {
	t.Helper()
	mgr := workspace.NewManager(t.TempDir())
	ws, err := mgr.Acquire(layout)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Release(ws) })
	return ws
}

type stubRunner struct {
	res  *sandbox.CommandResult
	err  error
	got  sandbox.Command
	seen bool
}

func (s *stubRunner) Run(_ context.Context, c sandbox.Command) (*sandbox.CommandResult, error) {
	s.got = c
	s.seen = true
	return s.res, s.err
}

func TestArgs(t *testing.T) {
	ws := &workspace.Workspace{SourcePath: "/w/program.tr", ArtifactPath: "/w/program"}
	o := NewOrchestrator("derle", time.Second, nil)

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"native", Request{}, []string{"/w/program.tr", "-o", "/w/program"}},
		{"native ignores optimization", Request{Optimization: OptO2, EmitIR: true},
			[]string{"/w/program.tr", "-o", "/w/program"}},
		{"llvm", Request{Backend: BackendLLVM},
			[]string{"/w/program.tr", "-o", "/w/program", "--backend=llvm"}},
		{"llvm O3 ir", Request{Backend: BackendLLVM, Optimization: OptO3, EmitIR: true},
			[]string{"/w/program.tr", "-o", "/w/program", "--backend=llvm", "-O3", "--emit-llvm"}},
		{"wasm", Request{Backend: BackendLLVM, Target: TargetWasm},
			[]string{"/w/program.tr", "-o", "/w/program", "--backend=llvm", "-hedef", "wasm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.Args(ws, tt.req))
		})
	}
}

func TestCompile_Success(t *testing.T) {
	compiler := fakeCompiler(t, `printf '#!/bin/sh\necho hi\n' > "$3"`)
	ws := acquire(t, workspace.Native)

	o := NewOrchestrator(compiler, 5*time.Second, sandbox.NewExecRunner(1<<20))
	out, err := o.Compile(context.Background(), ws, Request{Code: "yazdır(1)"})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.True(t, out.ArtifactExists)
	assert.Positive(t, out.ArtifactSize)

	src, err := os.ReadFile(ws.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, "yazdır(1)", string(src))
}

func TestCompile_Failure(t *testing.T) {
	compiler := fakeCompiler(t, `echo "satir 1: beklenmeyen sembol" >&2; exit 1`)
	ws := acquire(t, workspace.Native)

	o := NewOrchestrator(compiler, 5*time.Second, sandbox.NewExecRunner(1<<20))
	out, err := o.Compile(context.Background(), ws, Request{Code: "yazdır("})
	require.NoError(t, err)

	assert.False(t, out.Succeeded())
	assert.False(t, out.ArtifactExists)
	assert.Equal(t, "satir 1: beklenmeyen sembol\n", out.Diagnostic("Derleme hatasi"))
}

func TestCompile_Timeout(t *testing.T) {
	compiler := fakeCompiler(t, `sleep 10`)
	ws := acquire(t, workspace.Native)

	o := NewOrchestrator(compiler, 200*time.Millisecond, sandbox.NewExecRunner(1<<20))
	start := time.Now()
	_, err := o.Compile(context.Background(), ws, Request{Code: "x"})

	require.ErrorIs(t, err, ErrCompileTimeout)
	assert.True(t, sandbox.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCompile_CallerCancellationDoesNotStopCompiler(t *testing.T) {
	compiler := fakeCompiler(t, `sleep 0.5; touch "$3"`)
	ws := acquire(t, workspace.Native)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	o := NewOrchestrator(compiler, 5*time.Second, sandbox.NewExecRunner(1<<20))
	out, err := o.Compile(ctx, ws, Request{Code: "x"})

	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.True(t, out.ArtifactExists)
}

func TestCompile_IR(t *testing.T) {
	compiler := fakeCompiler(t, `touch "$3"; echo "define i32 @main()" > "$3.ll"`)
	ws := acquire(t, workspace.Native)

	o := NewOrchestrator(compiler, 5*time.Second, sandbox.NewExecRunner(1<<20))
	out, err := o.Compile(context.Background(), ws, Request{Code: "x", Backend: BackendLLVM, EmitIR: true})
	require.NoError(t, err)
	assert.Equal(t, "define i32 @main()\n", string(out.IR))
}

func TestCompile_IRMissing(t *testing.T) {
	compiler := fakeCompiler(t, `touch "$3"`)
	ws := acquire(t, workspace.Native)

	o := NewOrchestrator(compiler, 5*time.Second, sandbox.NewExecRunner(1<<20))
	out, err := o.Compile(context.Background(), ws, Request{Code: "x", Backend: BackendLLVM, EmitIR: true})
	require.ErrorIs(t, err, ErrIRMissing)
	require.NotNil(t, out)
	assert.Nil(t, out.IR)
}

func TestCompile_RunnerFailure(t *testing.T) {
	ws := acquire(t, workspace.Native)
	runner := &stubRunner{err: errors.New("fork failed")}

	o := NewOrchestrator("/nonexistent", time.Second, runner)
	_, err := o.Compile(context.Background(), ws, Request{Code: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompileTimeout)
	assert.Equal(t, ws.Dir, runner.got.Dir)
}

func TestDiagnostic(t *testing.T) {
	tests := []struct {
		name string
		out  Outcome
		want string
	}{
		{"stderr wins", Outcome{Stderr: []byte("err"), Stdout: []byte("out")}, "err"},
		{"stdout fallback", Outcome{Stderr: []byte("  \n"), Stdout: []byte("out")}, "out"},
		{"fixed fallback", Outcome{}, "Derleme hatasi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.out.Diagnostic("Derleme hatasi"))
		})
	}
}
