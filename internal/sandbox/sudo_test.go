package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonyukuk-playground/internal/config"
)

func newTestSudo(t *testing.T, template string) *SudoIsolator {
	t.Helper()
	cfg := config.DefaultConfig().Sandbox
	cfg.CommandTemplate = template
	iso, err := NewSudoIsolator(cfg, NewExecRunner(1<<16))
	require.NoError(t, err)
	return iso
}

func TestSudoIsolator_DefaultArgv(t *testing.T) {
	iso := newTestSudo(t, config.DefaultConfig().Sandbox.CommandTemplate)

	argv := iso.Argv(RunSpec{
		Binary:  "/tmp/play_abc/program",
		WorkDir: "/tmp/play_abc",
		Timeout: 5 * time.Second,
	})

	want := []string{
		"timeout", "5",
		"sudo", "-u", "tonyukuktr",
		"env", "-i", "PATH=/usr/bin:/bin",
		"/tmp/play_abc/program",
	}
	assert.Equal(t, want, argv)
}

func TestSudoIsolator_PlaceholdersDoNotSplit(t *testing.T) {
	iso := newTestSudo(t, `sh -c 'exec "$0"' {bin}`)

	argv := iso.Argv(RunSpec{Binary: "/tmp/dir with space/program", Timeout: 500 * time.Millisecond})
	require.Len(t, argv, 4)
	assert.Equal(t, "/tmp/dir with space/program", argv[3])
}

func TestSudoIsolator_BadTemplate(t *testing.T) {
	cfg := config.DefaultConfig().Sandbox
	cfg.CommandTemplate = `timeout "unterminated`
	_, err := NewSudoIsolator(cfg, nil)
	assert.Error(t, err)

	cfg.CommandTemplate = "   "
	_, err = NewSudoIsolator(cfg, nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestSudoIsolator_RunsProgram(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, `echo out; echo err >&2; pwd`)

	sb := New(newTestSudo(t, "{bin}"), 2*time.Second, time.Second)
	out, err := sb.Execute(context.Background(), "run-1", bin, dir)
	require.NoError(t, err)

	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{"out\n" + dir + "\nerr\n", "out\n" + resolved + "\nerr\n"}, out.CombinedOutput)
	assert.False(t, out.TimedOut)
}

func TestSudoIsolator_SupervisorTimeout(t *testing.T) {
	if _, err := exec.LookPath("timeout"); err != nil {
		t.Skip("timeout(1) not available")
	}
	dir := t.TempDir()
	bin := writeProgram(t, dir, `echo basladi; sleep 10`)

	sb := New(newTestSudo(t, "timeout {timeout} {bin}"), 300*time.Millisecond, 2*time.Second)
	out, err := sb.Execute(context.Background(), "run-2", bin, dir)
	require.NoError(t, err)

	assert.True(t, out.TimedOut)
	assert.Equal(t, timeoutExitCode, out.ExitCode)
	assert.Equal(t, "basladi\n\n"+TimeoutMarker, out.CombinedOutput)
}

func TestSudoIsolator_HarnessTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := writeProgram(t, dir, `sleep 10`)

	sb := New(newTestSudo(t, "{bin}"), 100*time.Millisecond, 100*time.Millisecond)

	start := time.Now()
	out, err := sb.Execute(context.Background(), "run-3", bin, dir)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, TimeoutMarker, out.CombinedOutput)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "5", formatSeconds(5*time.Second))
	assert.Equal(t, "0.25", formatSeconds(250*time.Millisecond))
}
