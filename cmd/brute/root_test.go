package brute

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/report"
)

const loginManifest = `
name: shell-login
category: protocol
description: accepts the guess "secret"
initialize: {command: ""}
attempt:
  command: sh
  args: ["-c", "[ \"$BRUTE_GUESS\" = secret ]"]
success: {exit_code: 0}
`

func resetViper(t *testing.T, ws string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("workspace", ws)
	viper.Set("log_level", "error")
}

func TestAttackFlagsFromViper(t *testing.T) {
	tests := []struct {
		name  string
		set   map[string]any
		field string
	}{
		{"missing username", map[string]any{"wordlist": "w"}, "username"},
		{"missing wordlist", map[string]any{"username": "admin"}, "wordlist"},
		{"bad port", map[string]any{"username": "admin", "wordlist": "w", "port": 70000}, "port"},
		{"ok", map[string]any{"username": "admin", "wordlist": "w", "port": 21}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t, t.TempDir())
			for k, v := range tt.set {
				viper.Set(k, v)
			}
			_, err := attackFlagsFromViper()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *app.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRunRoot_AttackWithoutModule(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
	}{
		{"username and wordlist", map[string]any{"username": "admin", "wordlist": "words.txt"}},
		{"wordlist only", map[string]any{"wordlist": "words.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t, t.TempDir())
			for k, v := range tt.set {
				viper.Set(k, v)
			}
			err := runRoot(rootCmd)
			var cfgErr *app.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "module", cfgErr.Field)
			assert.Contains(t, err.Error(), "-m")
		})
	}
}

func TestRunRoot_NoArgumentsPrintsHelp(t *testing.T) {
	resetViper(t, t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, runRoot(rootCmd))
	assert.Contains(t, out.String(), "Usage:")
}

func TestInitConfig_ReadsConfigFile(t *testing.T) {
	resetViper(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "brute.yaml")
	require.NoError(t, os.WriteFile(path, []byte("delay: 9\nusername: root\n"), 0o644))
	viper.Set("config", path)

	require.NoError(t, initConfig(rootCmd))
	assert.Equal(t, 9, viper.GetInt("delay"))
	assert.Equal(t, "root", viper.GetString("username"))

	viper.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *app.ConfigurationError
	require.ErrorAs(t, initConfig(rootCmd), &cfgErr)
	assert.Equal(t, "config", cfgErr.Field)
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "http://x/login", target(attackFlags{url: "http://x/login", address: "x"}))
	assert.Equal(t, "10.0.0.1:21", target(attackFlags{address: "10.0.0.1", port: 21}))
	assert.Equal(t, "module default target", target(attackFlags{}))
}

func TestAddModule_InstallsIntoWorkspace(t *testing.T) {
	ws := t.TempDir()
	resetViper(t, ws)

	src := filepath.Join(t.TempDir(), "shell-login.yaml")
	require.NoError(t, os.WriteFile(src, []byte(loginManifest), 0o644))

	require.NoError(t, runAddModule(src))
	assert.FileExists(t, filepath.Join(ws, "modules", "protocol", "shell-login.yaml"))

	err := runAddModule(src)
	assert.ErrorIs(t, err, modules.ErrDuplicateModule, "the installed copy is discovered on the next start")
}

func TestAddModule_RejectsBrokenManifest(t *testing.T) {
	resetViper(t, t.TempDir())
	src := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(src, []byte("name: broken\ninitialize: {command: \"\"}\n"), 0o644))

	assert.ErrorIs(t, runAddModule(src), modules.ErrContractViolation)
}

func TestRunAttack_EndToEnd(t *testing.T) {
	ws := t.TempDir()
	resetViper(t, ws)
	dir := filepath.Join(ws, "modules", "protocol")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shell-login.yaml"), []byte(loginManifest), 0o644))

	words := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(words, []byte("123456\n\nsecret\nadmin\n"), 0o644))

	viper.Set("module", "shell-login")
	viper.Set("username", "admin")
	viper.Set("wordlist", words)
	viper.Set("skip_blank", true)
	require.NoError(t, runAttack(context.Background()))

	summary, err := report.Collect(filepath.Join(ws, "findings"), time.Now())
	require.NoError(t, err)
	require.Len(t, summary.Runs, 1)
	run := summary.Runs[0]
	assert.Equal(t, engine.RunCredentialFound, run.Outcome)
	assert.Equal(t, 2, run.Attempts, "the blank line is skipped")
	assert.Equal(t, "secret", run.Found.Guess)
}

func TestRunAttack_UnknownModule(t *testing.T) {
	resetViper(t, t.TempDir())
	viper.Set("module", "telnet")
	viper.Set("username", "admin")
	viper.Set("wordlist", "w")

	assert.ErrorIs(t, runAttack(context.Background()), modules.ErrModuleNotFound)
}
