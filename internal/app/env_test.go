package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BRUTE_TEST_DELAY=7\nBRUTE_TEST_KEEP=file\n"), 0o644))
	t.Setenv("BRUTE_TEST_KEEP", "env")
	t.Setenv("BRUTE_TEST_DELAY", "")
	require.NoError(t, os.Unsetenv("BRUTE_TEST_DELAY"))

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "7", os.Getenv("BRUTE_TEST_DELAY"))
	assert.Equal(t, "env", os.Getenv("BRUTE_TEST_KEEP"), "existing variables win")
}

func TestLoadEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnvFile(missing, false))
	assert.NoError(t, LoadEnvFile("", true))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, LoadEnvFile(missing, true), &cfgErr)
	assert.Equal(t, "env-file", cfgErr.Field)
}
