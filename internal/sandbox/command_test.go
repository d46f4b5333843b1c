package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_ExitCode(t *testing.T) {
	r := NewExecRunner(1024)
	res, err := r.Run(context.Background(), Command{Path: "sh", Args: []string{"-c", "echo x; exit 3"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if string(res.Stdout) != "x\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "x\n")
	}
}

func TestExecRunner_Dir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(1024)
	res, err := r.Run(context.Background(), Command{Path: "sh", Args: []string{"-c", "ls"}, Dir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stdout) != 0 {
		t.Errorf("expected empty listing of a fresh dir, got %q", res.Stdout)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	r := NewExecRunner(1024)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx, Command{Path: "sh", Args: []string{"-c", "echo once; sleep 10"}})
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if res == nil || !strings.HasPrefix(string(res.Stdout), "once") {
		t.Errorf("expected partial output to survive the kill, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %s, child group was not terminated", elapsed)
	}
}

func TestExecRunner_Canceled(t *testing.T) {
	r := NewExecRunner(1024)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := r.Run(ctx, Command{Path: "sh", Args: []string{"-c", "sleep 10"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if IsTimeout(err) {
		t.Error("cancellation must not be reported as a timeout")
	}
	if res != nil {
		t.Errorf("a canceled command has no exit status, got %+v", res)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(1024)
	if _, err := r.Run(context.Background(), Command{Path: "/nonexistent/tonyukuk-derle"}); err == nil {
		t.Error("expected error for missing binary")
	}
	if _, err := r.Run(context.Background(), Command{}); err != ErrEmptyCommand {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("defgh"))
	if n != 5 {
		t.Errorf("Write should report the full length, got %d", n)
	}
	n, _ = b.Write([]byte("ij"))
	if n != 2 {
		t.Errorf("Write past the cap should report the full length, got %d", n)
	}
	if got := string(b.Bytes()); got != "abcde" {
		t.Errorf("Bytes() = %q, want %q", got, "abcde")
	}
	if !b.truncated {
		t.Error("expected truncated flag")
	}
}
