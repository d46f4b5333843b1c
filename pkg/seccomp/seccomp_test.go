package seccomp

import (
	"encoding/json"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func allowed(p *specs.LinuxSeccomp) map[string]bool {
	names := make(map[string]bool)
	for _, rule := range p.Syscalls {
		if rule.Action != specs.ActAllow {
			continue
		}
		for _, name := range rule.Names {
			names[name] = true
		}
	}
	return names
}

func TestDefaultProfile_DenyByDefault(t *testing.T) {
	p := DefaultProfile()
	if p.DefaultAction != specs.ActErrno {
		t.Errorf("DefaultAction = %v, want ActErrno", p.DefaultAction)
	}
}

func TestDefaultProfile_SupervisorCanKill(t *testing.T) {
	names := allowed(DefaultProfile())
	for _, want := range []string{"execve", "wait4", "kill", "timer_create"} {
		if !names[want] {
			t.Errorf("%s should be allowed so timeout(1) can supervise the program", want)
		}
	}
}

func TestDefaultProfile_NoNetworkSyscalls(t *testing.T) {
	names := allowed(DefaultProfile())
	for _, banned := range []string{"socket", "connect", "bind", "ptrace", "mount"} {
		if names[banned] {
			t.Errorf("%q must not be allowed", banned)
		}
	}
}

func TestDockerProfileJSON_ValidJSON(t *testing.T) {
	data, err := DockerProfileJSON()
	if err != nil {
		t.Fatalf("DockerProfileJSON: %v", err)
	}

	var dp struct {
		DefaultAction string   `json:"defaultAction"`
		Architectures []string `json:"architectures"`
		Syscalls      []struct {
			Names  []string `json:"names"`
			Action string   `json:"action"`
		} `json:"syscalls"`
	}
	if err := json.Unmarshal(data, &dp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if dp.DefaultAction != "SCMP_ACT_ERRNO" {
		t.Errorf("defaultAction = %q, want SCMP_ACT_ERRNO", dp.DefaultAction)
	}
	if len(dp.Architectures) == 0 {
		t.Error("expected architectures, got none")
	}
	if len(dp.Syscalls) == 0 {
		t.Error("expected syscall rules, got none")
	}
}

func TestProfileBuilder(t *testing.T) {
	b := NewBuilder().AllowSyscalls("read", "write").TrapSyscalls("ptrace")
	p := b.Build()

	if len(p.Syscalls) != 2 {
		t.Fatalf("got %d rules, want 2", len(p.Syscalls))
	}
	if got := b.Names(specs.ActAllow); len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Errorf("allowed names = %v, want [read write]", got)
	}
	if got := b.Names(specs.ActTrap); len(got) != 1 || got[0] != "ptrace" {
		t.Errorf("trapped names = %v, want [ptrace]", got)
	}
}
