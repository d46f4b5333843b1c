package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIsolator returns a canned result and records the spec and the context
// state it was given.
type fakeIsolator struct {
	result *RunResult
	err    error
	got    RunSpec
	ctxErr error
}

func (f *fakeIsolator) Name() string { return "fake" }

func (f *fakeIsolator) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	f.got = spec
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

func (f *fakeIsolator) Close() error { return nil }

func writeProgram(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "program")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o600))
	return path
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		res  RunResult
		want string
	}{
		{"stdout only", RunResult{Stdout: []byte("merhaba\n")}, "merhaba\n"},
		{"stdout then stderr", RunResult{Stdout: []byte("a\n"), Stderr: []byte("b\n")}, "a\nb\n"},
		{"stderr only", RunResult{Stderr: []byte("hata\n"), ExitCode: 1}, "hata\n"},
		{"empty", RunResult{}, NoOutputMarker},
		{"whitespace only", RunResult{Stdout: []byte(" \n\t")}, NoOutputMarker},
		{"timed out with output", RunResult{Stdout: []byte("1\n2\n"), TimedOut: true}, "1\n2\n\n" + TimeoutMarker},
		{"timed out silently", RunResult{TimedOut: true}, "\n" + TimeoutMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			got := Combine(&res)
			assert.Equal(t, tt.want, got.CombinedOutput)
			assert.Equal(t, tt.res.TimedOut, got.TimedOut)
		})
	}
}

func TestExecute_MarksExecutableAndPassesBudget(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, "echo hi")

	iso := &fakeIsolator{result: &RunResult{Stdout: []byte("hi\n")}}
	sb := New(iso, 5*time.Second, 2*time.Second)

	out, err := sb.Execute(context.Background(), "exec-1", bin, dir)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.CombinedOutput)

	info, err := os.Stat(bin)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.Equal(t, bin, iso.got.Binary)
	assert.Equal(t, dir, iso.got.WorkDir)
	assert.Equal(t, 5*time.Second, iso.got.Timeout)
	assert.Equal(t, 2*time.Second, iso.got.Grace)
}

func TestExecute_IgnoresCallerCancellation(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, "echo hi")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	iso := &fakeIsolator{result: &RunResult{Stdout: []byte("hi\n")}}
	out, err := New(iso, time.Second, time.Second).Execute(ctx, "exec-5", bin, dir)
	require.NoError(t, err)
	assert.NoError(t, iso.ctxErr, "isolator saw the caller's cancellation")
	assert.Equal(t, "hi\n", out.CombinedOutput)
}

func TestExecute_HarnessTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, "true")

	sb := New(&fakeIsolator{err: ErrTimeout}, time.Second, time.Second)
	out, err := sb.Execute(context.Background(), "exec-2", bin, dir)

	require.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, out)
	assert.Equal(t, TimeoutMarker, out.CombinedOutput)
	assert.True(t, out.TimedOut)
}

func TestExecute_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	sb := New(&fakeIsolator{}, time.Second, time.Second)

	_, err := sb.Execute(context.Background(), "exec-3", filepath.Join(dir, "program"), dir)
	require.ErrorIs(t, err, ErrArtifactNotFound)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "chmod_artifact", execErr.Op)
}

func TestExecute_IsolatorFailureIsWrapped(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, "true")

	sb := New(&fakeIsolator{err: errors.New("sudo: unknown user")}, time.Second, time.Second)
	_, err := sb.Execute(context.Background(), "exec-4", bin, dir)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "exec-4", execErr.ExecID)
	assert.True(t, strings.Contains(err.Error(), "unknown user"))
}
