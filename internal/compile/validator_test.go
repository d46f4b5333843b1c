package compile

import (
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func form(pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v.Encode()
}

func TestValidator_Parse(t *testing.T) {
	v := NewValidator(8192)

	body := form("kod", `yazdır("Merhaba")`, "backend", "llvm", "optimize", "-O2", "emit_ir", "true")
	req, err := v.Parse(int64(len(body)), strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, `yazdır("Merhaba")`, req.Code)
	assert.Equal(t, BackendLLVM, req.Backend)
	assert.Equal(t, OptO2, req.Optimization)
	assert.True(t, req.EmitIR)
	assert.Equal(t, TargetHost, req.Target)
	assert.True(t, req.WantsIR())
}

func TestValidator_Defaults(t *testing.T) {
	v := NewValidator(8192)

	body := form("kod", "x", "backend", "LLVM", "optimize", "-O9", "emit_ir", "yes")
	req, err := v.Parse(int64(len(body)), strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, BackendNative, req.Backend)
	assert.Equal(t, OptNone, req.Optimization)
	assert.False(t, req.EmitIR)
}

// failingReader fails the test if anything reads from it.
type failingReader struct{ t *testing.T }

func (f failingReader) Read([]byte) (int, error) {
	f.t.Fatal("body must not be read")
	return 0, io.EOF
}

func TestValidator_Rejections(t *testing.T) {
	v := NewValidator(8192)

	tests := []struct {
		name     string
		declared int64
		body     io.Reader
		want     error
	}{
		{"oversize declared", 8193, failingReader{t}, ErrCodeTooLarge},
		{"zero length", 0, failingReader{t}, ErrEmptyBody},
		{"unknown length", -1, failingReader{t}, ErrEmptyBody},
		{"short body", 100, strings.NewReader("kod=x"), ErrMalformed},
		{"bad escape", 7, strings.NewReader("kod=%zz"), ErrMalformed},
		{"invalid utf8", 6, strings.NewReader("kod=\xff\xfe"), ErrMalformed},
		{"missing kod", 9, strings.NewReader("backend=x"), ErrEmptyCode},
		{"whitespace kod", 13, strings.NewReader("kod=+%0A%09++"), ErrEmptyCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Parse(tt.declared, tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestValidator_ExactLimit(t *testing.T) {
	v := NewValidator(16)

	body := "kod=" + strings.Repeat("a", 12)
	require.Len(t, body, 16)

	req, err := v.Parse(16, strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, req.Code, 12)
}

func TestValidator_ParseWasm(t *testing.T) {
	v := NewValidator(8192)

	body := form("kod", "x", "backend", "native", "emit_ir", "true", "optimize", "-O3")
	req, err := v.ParseWasm(int64(len(body)), strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, TargetWasm, req.Target)
	assert.Equal(t, BackendLLVM, req.Backend)
	assert.Equal(t, OptNone, req.Optimization)
	assert.False(t, req.EmitIR)
	assert.False(t, req.WantsIR())
}
