package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyModule is the smallest valid module: magic plus version.
var emptyModule = []byte("\x00asm\x01\x00\x00\x00")

func writeArtifact(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "program.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestGuard_Load(t *testing.T) {
	path := writeArtifact(t, emptyModule)

	data, err := NewGuard(524288, true).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, emptyModule, data)
}

func TestGuard_Missing(t *testing.T) {
	_, err := NewGuard(524288, true).Load(context.Background(), filepath.Join(t.TempDir(), "nope.wasm"))
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestGuard_TooLarge(t *testing.T) {
	data := make([]byte, 1025)
	copy(data, emptyModule)
	path := writeArtifact(t, data)

	_, err := NewGuard(1024, true).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrArtifactTooLarge)
}

func TestGuard_ExactlyAtLimit(t *testing.T) {
	path := writeArtifact(t, emptyModule)

	_, err := NewGuard(int64(len(emptyModule)), true).Load(context.Background(), path)
	assert.NoError(t, err)
}

func TestGuard_InvalidModule(t *testing.T) {
	path := writeArtifact(t, []byte("not wasm at all"))

	_, err := NewGuard(524288, true).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidModule)

	// validation off: bytes are served as produced
	data, err := NewGuard(524288, false).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "not wasm at all", string(data))
}
