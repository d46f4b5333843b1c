package compile

import "testing"

func TestParseBackend(t *testing.T) {
	tests := map[string]Backend{
		"llvm":   BackendLLVM,
		"native": BackendNative,
		"":       BackendNative,
		"LLVM":   BackendNative,
		" llvm":  BackendNative,
		"gcc":    BackendNative,
	}
	for in, want := range tests {
		if got := ParseBackend(in); got != want {
			t.Errorf("ParseBackend(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseOptimization(t *testing.T) {
	tests := []struct {
		in   string
		want Optimization
		flag string
	}{
		{"-O0", OptO0, "-O0"},
		{"-O1", OptO1, "-O1"},
		{"-O2", OptO2, "-O2"},
		{"-O3", OptO3, "-O3"},
		{"-Os", OptNone, ""},
		{"O2", OptNone, ""},
		{"", OptNone, ""},
	}
	for _, tt := range tests {
		got := ParseOptimization(tt.in)
		if got != tt.want {
			t.Errorf("ParseOptimization(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.Flag() != tt.flag {
			t.Errorf("ParseOptimization(%q).Flag() = %q, want %q", tt.in, got.Flag(), tt.flag)
		}
	}
}

func TestWantsIR(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{"llvm with ir", Request{Backend: BackendLLVM, EmitIR: true}, true},
		{"native ignores ir", Request{Backend: BackendNative, EmitIR: true}, false},
		{"llvm without ir", Request{Backend: BackendLLVM}, false},
		{"wasm never", Request{Backend: BackendLLVM, EmitIR: true, Target: TargetWasm}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.WantsIR(); got != tt.want {
				t.Errorf("WantsIR() = %v, want %v", got, tt.want)
			}
		})
	}
}
