package scaffold

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/modules/execmod"
)

func TestWrite_CreatesStub(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, "protocol", "pop3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pop3.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "NAME", doc["name"])
	assert.Equal(t, "protocol", doc["category"])
	assert.Contains(t, string(data), `Replace NAME below with "pop3"`)
	assert.Contains(t, string(data), "{{.Address}}")
}

func TestWrite_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, "web", "joomla")
	require.NoError(t, err)

	_, err = Write(dir, "web", "joomla")
	assert.ErrorIs(t, err, ErrExists)
}

func TestWrite_RequiresNames(t *testing.T) {
	_, err := Write(t.TempDir(), "", "x")
	assert.Error(t, err)
}

func TestWrite_UneditedStubIsNeverRegistered(t *testing.T) {
	root := t.TempDir()
	_, err := Write(filepath.Join(root, "protocol"), "protocol", "pop3")
	require.NoError(t, err)

	l := logrus.New()
	l.SetOutput(io.Discard)
	reg := modules.NewRegistry(modules.WithLogger(l))
	diags := reg.Discover(execmod.Load, root)

	require.Len(t, diags, 1)
	assert.ErrorIs(t, diags[0].Err, modules.ErrContractViolation)
	assert.Zero(t, reg.Len())
}
