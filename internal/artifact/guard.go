// Package artifact loads compiled WASM modules and checks them before they
// are served.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tetratelabs/wazero"
)

var (
	ErrArtifactMissing  = errors.New("artifact missing")
	ErrArtifactTooLarge = errors.New("artifact too large")
	ErrInvalidModule    = errors.New("artifact is not a valid wasm module")
)

// Guard enforces the size ceiling on compiled modules and, optionally,
// checks that they decode as WebAssembly.
type Guard struct {
	maxSize  int64
	validate bool
}

func NewGuard(maxSize int64, validate bool) *Guard {
	return &Guard{maxSize: maxSize, validate: validate}
}

// Load returns the module bytes at path. Oversized files are rejected from
// their size alone and never read.
func (g *Guard) Load(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrArtifactMissing
		}
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() > g.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrArtifactTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	if g.validate {
		if err := Validate(ctx, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Validate compiles the module without instantiating it.
func Validate(ctx context.Context, data []byte) error {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	mod, err := rt.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	return mod.Close(ctx)
}
