package seccomp

import (
	"encoding/json"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// programSyscalls covers what a compiled Tonyukuk program and its C runtime
// need: stdio, memory, threads, clocks and a scratch /tmp.
func programSyscalls(b *ProfileBuilder) *ProfileBuilder {
	return b.
		AllowSyscalls(
			"read", "write", "readv", "writev", "pread64", "pwrite64",
			"open", "openat", "close", "lseek",
			"stat", "fstat", "lstat", "newfstatat", "statx",
			"access", "faccessat", "faccessat2",
			"dup", "dup2", "dup3",
			"fcntl", "ioctl",
			"poll", "ppoll", "select", "pselect6",
			"pipe", "pipe2",
			"readlink", "readlinkat",
			"getdents64",
			"getcwd",
			"unlink", "unlinkat", "ftruncate", "fsync",
		).
		AllowSyscalls(
			"brk", "mmap", "munmap", "mprotect", "mremap", "madvise",
		).
		AllowSyscalls(
			"exit", "exit_group",
			"clone", "clone3",
			"set_tid_address",
			"set_robust_list", "get_robust_list",
			"rseq",
			"futex",
			"gettid",
			"sched_yield", "sched_getaffinity",
		).
		AllowSyscalls(
			"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigtimedwait",
			"sigaltstack",
			"tgkill",
		).
		AllowSyscalls(
			"clock_gettime", "clock_getres", "gettimeofday", "time",
			"nanosleep", "clock_nanosleep",
		).
		AllowSyscalls(
			"getpid", "getppid",
			"getuid", "geteuid", "getgid", "getegid",
			"uname", "sysinfo",
			"getrandom",
			"arch_prctl", "prctl",
			"getrlimit", "prlimit64",
		)
}

// supervisorSyscalls lets timeout(1) start the program, arm its timer and
// kill it when the budget runs out.
func supervisorSyscalls(b *ProfileBuilder) *ProfileBuilder {
	return b.AllowSyscalls(
		"execve", "execveat",
		"wait4", "waitid",
		"vfork",
		"kill",
		"setpgid", "getpgid",
		"timer_create", "timer_settime", "timer_delete",
		"alarm", "setitimer",
	)
}

func dangerousSyscalls(b *ProfileBuilder) *ProfileBuilder {
	return b.
		TrapSyscalls(
			"ptrace",
			"process_vm_readv", "process_vm_writev",
			"keyctl", "add_key", "request_key",
			"bpf",
			"perf_event_open",
			"userfaultfd",
			"kexec_load", "kexec_file_load",
			"finit_module", "init_module", "delete_module",
		).
		BlockSyscalls(
			"socket", "socketpair", "connect", "bind", "listen",
			"mount", "umount2", "pivot_root",
			"reboot",
			"swapon", "swapoff",
			"sethostname", "setdomainname",
			"setns", "unshare",
			"acct",
			"settimeofday", "adjtimex", "clock_adjtime",
			"personality",
			"ioperm", "iopl",
		)
}

// DefaultProfile returns the deny-by-default profile applied to compiled
// programs. Networking is never allowed.
func DefaultProfile() *specs.LinuxSeccomp {
	b := NewBuilder()
	b = programSyscalls(b)
	b = supervisorSyscalls(b)
	b = dangerousSyscalls(b)
	return b.Build()
}

// DockerProfileJSON renders DefaultProfile in the format accepted by
// `docker run --security-opt seccomp=<file>`.
func DockerProfileJSON() ([]byte, error) {
	return json.Marshal(DefaultProfile())
}
