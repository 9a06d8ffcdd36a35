package execmod

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/wordlist"
)

const shellManifest = `
name: shell-login
description: accepts the guess "secret"
defaults:
  address: 127.0.0.1
  port: 2121
initialize: {command: ""}
check_reachable:
  command: sh
  args: ["-c", "exit 0"]
attempt:
  command: sh
  args: ["-c", "if [ \"$BRUTE_GUESS\" = secret ]; then echo 'Welcome {{.Identifier}}'; else echo denied; fi"]
  timeout: 5s
success:
  exit_code: 0
  contains: Welcome
`

func writeManifest(t *testing.T, dir, file, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParseManifest_Valid(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "shell-login.yaml", shellManifest)
	m, err := ParseManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "shell-login", m.Name)
	assert.Equal(t, 2121, m.Defaults.Port)
	assert.Equal(t, 5*time.Second, m.Attempt.timeout)
	require.NotNil(t, m.CheckReachable)
}

func TestManifest_Validate(t *testing.T) {
	exit0 := 0
	base := func() *Manifest {
		return &Manifest{
			Name:       "ok",
			Initialize: &Operation{},
			Attempt:    &Operation{Command: "true"},
			Success:    &Matcher{ExitCode: &exit0},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
		reason string
	}{
		{"valid", func(*Manifest) {}, ""},
		{"missing initialize", func(m *Manifest) { m.Initialize = nil }, "missing initialize"},
		{"missing attempt", func(m *Manifest) { m.Attempt = nil }, "missing attempt"},
		{"attempt without command", func(m *Manifest) { m.Attempt.Command = " " }, "no command"},
		{"missing success", func(m *Manifest) { m.Success = nil }, "missing success"},
		{"empty matcher", func(m *Manifest) { m.Success = &Matcher{} }, "no condition"},
		{"bad regex", func(m *Manifest) { m.Success = &Matcher{Regex: "("} }, "invalid regex"},
		{"bad timeout", func(m *Manifest) { m.Attempt.Timeout = "soon" }, "invalid timeout"},
		{"bad template", func(m *Manifest) { m.Attempt.Args = []string{"{{.Guess"} }, "arg 0"},
		{"probe without command", func(m *Manifest) { m.CheckReachable = &Operation{} }, "check_reachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			err := m.Validate()
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, modules.ErrContractViolation)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "bad.yaml", "name: [unterminated")
	_, err := ParseManifest(path)
	assert.ErrorIs(t, err, modules.ErrContractViolation)
}

func TestMatcher_Match(t *testing.T) {
	zero, one := 0, 1
	tests := []struct {
		name string
		m    Matcher
		resp Response
		want bool
	}{
		{"exit code", Matcher{ExitCode: &zero}, Response{ExitCode: 0}, true},
		{"exit code mismatch", Matcher{ExitCode: &one}, Response{ExitCode: 0}, false},
		{"contains", Matcher{Contains: "230 Login"}, Response{Stdout: "230 Login successful"}, true},
		{"not contains", Matcher{NotContains: "Invalid"}, Response{Stdout: "Invalid password"}, false},
		{"regex", Matcher{Regex: `(?i)welcome\s+back`}, Response{Stdout: "WELCOME back admin"}, true},
		{"regex lookahead", Matcher{Regex: `^(?!.*denied).*ok`}, Response{Stdout: "access denied ok"}, false},
		{"all must hold", Matcher{ExitCode: &zero, Contains: "ok"}, Response{ExitCode: 1, Stdout: "ok"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.m.compile())
			assert.Equal(t, tt.want, tt.m.Match(tt.resp))
		})
	}
}

func newShellModule(t *testing.T, opts modules.Options) *Module {
	t.Helper()
	path := writeManifest(t, t.TempDir(), "shell-login.yaml", shellManifest)
	m, err := ParseManifest(path)
	require.NoError(t, err)
	return New(m, opts)
}

func TestModule_DefaultsMerged(t *testing.T) {
	mod := newShellModule(t, modules.Options{Port: 21, Extra: map[string]string{"k": "v"}})
	assert.Equal(t, "127.0.0.1", mod.Options().Address)
	assert.Equal(t, 21, mod.Options().Port)
	assert.Equal(t, "v", mod.Options().Extra["k"])
}

func TestModule_AttemptAndIsSuccess(t *testing.T) {
	mod := newShellModule(t, modules.Options{})
	ctx := context.Background()
	require.NoError(t, mod.Initialize(ctx))
	require.NoError(t, mod.CheckReachable(ctx))

	resp, err := mod.Attempt(ctx, modules.Credential{Identifier: "admin", Guess: "wrong"})
	require.NoError(t, err)
	assert.False(t, mod.IsSuccess(resp))
	assert.Contains(t, resp.(Response).Stdout, "denied")

	resp, err = mod.Attempt(ctx, modules.Credential{Identifier: "admin", Guess: "secret"})
	require.NoError(t, err)
	assert.True(t, mod.IsSuccess(resp))
	assert.Contains(t, resp.(Response).Stdout, "Welcome admin")

	assert.False(t, mod.IsSuccess("not a response"))
}

func TestModule_GuessOnStdin(t *testing.T) {
	m := &Manifest{
		Name:       "stdin",
		Initialize: &Operation{},
		Attempt:    &Operation{Command: "sh", Args: []string{"-c", "read pw; [ \"$pw\" = letmein ]"}},
		Success:    &Matcher{ExitCode: new(int)},
	}
	require.NoError(t, m.Validate())
	mod := New(m, modules.Options{})

	resp, err := mod.Attempt(context.Background(), modules.Credential{Guess: "letmein"})
	require.NoError(t, err)
	assert.True(t, mod.IsSuccess(resp))

	resp, err = mod.Attempt(context.Background(), modules.Credential{Guess: "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.(Response).ExitCode)
	assert.False(t, mod.IsSuccess(resp))
}

func TestModule_AttemptTimeoutIsAttemptError(t *testing.T) {
	m := &Manifest{
		Name:       "slow",
		Initialize: &Operation{},
		Attempt:    &Operation{Command: "sleep", Args: []string{"5"}, Timeout: "50ms"},
		Success:    &Matcher{ExitCode: new(int)},
	}
	require.NoError(t, m.Validate())

	_, err := New(m, modules.Options{}).Attempt(context.Background(), modules.Credential{Guess: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, modules.ErrAttempt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModule_MissingCommandIsAttemptError(t *testing.T) {
	m := &Manifest{
		Name:       "ghost",
		Initialize: &Operation{},
		Attempt:    &Operation{Command: "definitely-not-a-real-binary-42"},
		Success:    &Matcher{ExitCode: new(int)},
	}
	require.NoError(t, m.Validate())

	_, err := New(m, modules.Options{}).Attempt(context.Background(), modules.Credential{})
	assert.ErrorIs(t, err, modules.ErrAttempt)
}

func TestModule_InitializeAndProbeFailures(t *testing.T) {
	m := &Manifest{
		Name:           "down",
		Initialize:     &Operation{Command: "sh", Args: []string{"-c", "echo no session >&2; exit 3"}},
		CheckReachable: &Operation{Command: "sh", Args: []string{"-c", "exit 1"}},
		Attempt:        &Operation{Command: "true"},
		Success:        &Matcher{ExitCode: new(int)},
	}
	require.NoError(t, m.Validate())
	mod := New(m, modules.Options{})

	err := mod.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "no session")

	assert.Error(t, mod.CheckReachable(context.Background()))
}

func TestModule_NoProbeConfigured(t *testing.T) {
	m := &Manifest{
		Name:       "noprobe",
		Initialize: &Operation{},
		Attempt:    &Operation{Command: "true"},
		Success:    &Matcher{ExitCode: new(int)},
	}
	require.NoError(t, m.Validate())
	assert.ErrorIs(t, New(m, modules.Options{}).CheckReachable(context.Background()), modules.ErrProbeNotImplemented)
}

func TestDiscover_ManifestMissingAttemptNeverListed(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "protocol"), "shell-login.yaml", shellManifest)
	writeManifest(t, filepath.Join(root, "protocol"), "half.yaml", `
name: half
initialize: {command: ""}
success: {exit_code: 0}
`)
	writeManifest(t, filepath.Join(root, "protocol"), "stub.yaml", `
name: NAME
initialize: {command: ""}
attempt: {command: "true"}
success: {exit_code: 0}
`)

	reg := modules.NewRegistry(modules.WithLogger(quietLogger()))
	diags := reg.Discover(Load, root)

	require.Len(t, diags, 2)
	assert.Equal(t, []modules.Entry{{
		Category:    modules.CategoryProtocol,
		Name:        "shell-login",
		Description: `accepts the guess "secret"`,
	}}, reg.List())

	_, err := reg.Resolve("half")
	assert.ErrorIs(t, err, modules.ErrContractViolation)
}

func TestLoadExternal_CategoryFromDirectory(t *testing.T) {
	path := writeManifest(t, filepath.Join(t.TempDir(), "web"), "shell-login.yaml", shellManifest)
	_, d, err := LoadExternal(path)
	require.NoError(t, err)
	assert.Equal(t, modules.CategoryWeb, d.Category)
	assert.Equal(t, path, d.Source)
}

func TestEngine_EndToEndWithExecModule(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "protocol"), "shell-login.yaml", shellManifest)
	reg := modules.NewRegistry(modules.WithLogger(quietLogger()))
	require.Empty(t, reg.Discover(Load, root))

	d, err := reg.Resolve("shell-login")
	require.NoError(t, err)
	mod, err := d.New(modules.Options{Username: "admin"})
	require.NoError(t, err)

	eng := engine.New(engine.Config{Module: d.Name, Identifier: "admin", Delay: time.Millisecond, Logger: quietLogger()})
	status, err := eng.Run(context.Background(), mod, wordlist.FromSlice([]string{"123456", "password", "secret", "admin"}))
	require.NoError(t, err)

	assert.Equal(t, engine.RunCredentialFound, status.Outcome)
	assert.Equal(t, 3, status.Attempts)
	assert.Equal(t, "secret", status.Found.Guess)
}
