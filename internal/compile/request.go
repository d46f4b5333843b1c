// Package compile parses playground requests and drives the Tonyukuk
// compiler inside a workspace.
package compile

// Backend selects the compiler's code generation path.
type Backend int

const (
	BackendNative Backend = iota
	BackendLLVM
)

// ParseBackend returns BackendLLVM only for the exact text "llvm".
func ParseBackend(s string) Backend {
	if s == "llvm" {
		return BackendLLVM
	}
	return BackendNative
}

func (b Backend) String() string {
	if b == BackendLLVM {
		return "llvm"
	}
	return "native"
}

// Optimization is the llvm backend's optimization level.
type Optimization int

const (
	OptNone Optimization = iota
	OptO0
	OptO1
	OptO2
	OptO3
)

var optimizationFlags = map[string]Optimization{
	"-O0": OptO0,
	"-O1": OptO1,
	"-O2": OptO2,
	"-O3": OptO3,
}

// ParseOptimization maps "-O0".."-O3" to a level; anything else is OptNone.
func ParseOptimization(s string) Optimization {
	if o, ok := optimizationFlags[s]; ok {
		return o
	}
	return OptNone
}

// Flag returns the compiler flag, or "" for OptNone.
func (o Optimization) Flag() string {
	switch o {
	case OptO0:
		return "-O0"
	case OptO1:
		return "-O1"
	case OptO2:
		return "-O2"
	case OptO3:
		return "-O3"
	default:
		return ""
	}
}

func (o Optimization) String() string {
	if o == OptNone {
		return "none"
	}
	return o.Flag()
}

// Target is what the compiler produces.
type Target int

const (
	TargetHost Target = iota
	TargetWasm
)

func (t Target) String() string {
	if t == TargetWasm {
		return "wasm"
	}
	return "host"
}

// Request is one validated compile request. It is never modified after
// parsing.
type Request struct {
	Code         string
	Backend      Backend
	Optimization Optimization
	EmitIR       bool
	Target       Target
}

// WantsIR reports whether the caller asked for IR text instead of a run.
// IR is only produced by the llvm backend.
func (r Request) WantsIR() bool {
	return r.EmitIR && r.Backend == BackendLLVM && r.Target == TargetHost
}
