// Package workspace manages the per-request ephemeral directories that hold
// the submitted source and the compiled artifact.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// SourceName is the file the submitted code is written to.
const SourceName = "program.tr"

// irSuffix is appended to the artifact path by the compiler's --emit-llvm.
const irSuffix = ".ll"

// Layout describes the directory naming for one kind of request.
type Layout struct {
	Prefix       string
	ArtifactName string
}

var (
	// Native is used by /run: the artifact is an executable.
	Native = Layout{Prefix: "play_", ArtifactName: "program"}
	// Wasm is used by /compile-wasm.
	Wasm = Layout{Prefix: "wasm_", ArtifactName: "program.wasm"}
)

// Workspace is one exclusively owned directory plus its derived paths.
type Workspace struct {
	Dir          string
	SourcePath   string
	ArtifactPath string
	IRPath       string

	once sync.Once
}

// Name returns the directory's base name, used as a log field.
func (w *Workspace) Name() string {
	return filepath.Base(w.Dir)
}

// Manager creates and removes workspaces under a fixed root.
type Manager struct {
	root string
	mode os.FileMode
}

func NewManager(root string) *Manager {
	return &Manager{
		root: root,
		mode: 0o755,
	}
}

// Acquire creates a uniquely named directory that the sandbox account can
// traverse. Callers must defer Release on the returned workspace.
func (m *Manager) Acquire(layout Layout) (*Workspace, error) {
	dir, err := os.MkdirTemp(m.root, layout.Prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	if err := os.Chmod(dir, m.mode); err != nil { // #nosec G302 -- the sandbox account needs to traverse it
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("chmod workspace: %w", err)
	}

	artifact := filepath.Join(dir, layout.ArtifactName)
	return &Workspace{
		Dir:          dir,
		SourcePath:   filepath.Join(dir, SourceName),
		ArtifactPath: artifact,
		IRPath:       artifact + irSuffix,
	}, nil
}

// Release removes the workspace and everything in it. Failures are logged and
// swallowed; only the first call on a workspace has any effect.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.once.Do(func() {
		if err := os.RemoveAll(ws.Dir); err != nil {
			log.Debug().Err(err).Str("workspace", ws.Name()).Msg("workspace removal failed")
		}
	})
}
