package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	h, err := Ensure(root)
	require.NoError(t, err)

	for _, d := range []string{"findings", "logs", "modules/protocol", "modules/web"} {
		assert.DirExists(t, filepath.Join(root, d))
	}
	assert.Equal(t, filepath.Join(root, "findings", "run-abc.jsonl"), h.FindingsPath("abc"))
	assert.Equal(t, filepath.Join(root, "modules"), h.ModulesDir())
}

func TestEnsure_Idempotent(t *testing.T) {
	root := t.TempDir()
	_, err := Ensure(root)
	require.NoError(t, err)
	_, err = Ensure(root)
	assert.NoError(t, err)
}
