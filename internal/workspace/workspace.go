package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
)

// Handle implements app.WorkspaceHandle and provides helper methods.
type Handle struct {
	Root string
}

// Path joins workspace root with provided parts.
func (h Handle) Path(parts ...string) string {
	all := append([]string{h.Root}, parts...)
	return filepath.Join(all...)
}

// ModulesDir is the module root that --add_module copies manifests into.
func (h Handle) ModulesDir() string { return h.Path("modules") }

// FindingsPath is the JSONL file for one run.
func (h Handle) FindingsPath(runID string) string {
	return h.Path("findings", fmt.Sprintf("run-%s.jsonl", runID))
}

// LogPath is the default rotated log file.
func (h Handle) LogPath() string { return h.Path("logs", "brute.log") }

// Ensure creates the workspace directory structure if missing.
func Ensure(root string) (Handle, error) {
	h := Handle{Root: root}
	dirs := []string{
		root,
		filepath.Join(root, "findings"),
		filepath.Join(root, "logs"),
		filepath.Join(root, "modules"),
	}
	for _, c := range modules.BuiltinCategories {
		dirs = append(dirs, filepath.Join(root, "modules", string(c)))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return h, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return h, nil
}
