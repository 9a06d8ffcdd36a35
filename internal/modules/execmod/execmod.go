// Package execmod implements the Module contract on top of external commands
// described by a YAML manifest. Each contract operation is one command; the
// core never speaks a protocol itself.
package execmod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
)

// maxOutput caps captured stdout/stderr per command.
const maxOutput = 100 * 1024

// Response is what one command produced.
type Response struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TemplateData is the value args and env templates are rendered against.
type TemplateData struct {
	Identifier string
	Guess      string
	Address    string
	Port       int
	URL        string
	Extra      map[string]string
}

// Module runs a manifest's commands for one run.
type Module struct {
	manifest *Manifest
	opts     modules.Options
	baseEnv  []string
}

var (
	_ modules.Module = (*Module)(nil)
	_ modules.Prober = (*Module)(nil)
)

// New binds a validated manifest to target options. Options left empty fall
// back to the manifest defaults.
func New(m *Manifest, opts modules.Options) *Module {
	if opts.Address == "" {
		opts.Address = m.Defaults.Address
	}
	if opts.Port == 0 {
		opts.Port = m.Defaults.Port
	}
	if opts.URL == "" {
		opts.URL = m.Defaults.URL
	}
	extra := make(map[string]string, len(m.Defaults.Extra)+len(opts.Extra))
	for k, v := range m.Defaults.Extra {
		extra[k] = v
	}
	for k, v := range opts.Extra {
		extra[k] = v
	}
	opts.Extra = extra
	return &Module{manifest: m, opts: opts, baseEnv: os.Environ()}
}

// Options returns the effective target options.
func (m *Module) Options() modules.Options { return m.opts }

// Initialize runs the initialize command once. An empty command is a no-op.
func (m *Module) Initialize(ctx context.Context) error {
	op := m.manifest.Initialize
	if op == nil || op.Command == "" {
		return nil
	}
	resp, err := m.run(ctx, op, m.data(modules.Credential{Identifier: m.opts.Username}), "")
	if err != nil {
		return err
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("initialize exited with status %d: %s", resp.ExitCode, firstLine(resp.Stderr))
	}
	return nil
}

// CheckReachable runs the probe command; exit 0 means reachable.
func (m *Module) CheckReachable(ctx context.Context) error {
	op := m.manifest.CheckReachable
	if op == nil {
		return modules.ErrProbeNotImplemented
	}
	resp, err := m.run(ctx, op, m.data(modules.Credential{Identifier: m.opts.Username}), "")
	if err != nil {
		return err
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("probe exited with status %d: %s", resp.ExitCode, firstLine(resp.Stderr))
	}
	return nil
}

// Attempt runs the attempt command for one credential. The guess is also
// written to stdin so commands need not take it on the command line.
func (m *Module) Attempt(ctx context.Context, cred modules.Credential) (modules.Response, error) {
	resp, err := m.run(ctx, m.manifest.Attempt, m.data(cred), cred.Guess+"\n")
	if err != nil {
		return nil, &modules.AttemptError{Err: err}
	}
	return resp, nil
}

// IsSuccess applies the manifest's success matcher.
func (m *Module) IsSuccess(resp modules.Response) bool {
	switch r := resp.(type) {
	case Response:
		return m.manifest.Success.Match(r)
	case *Response:
		return r != nil && m.manifest.Success.Match(*r)
	}
	return false
}

func (m *Module) data(cred modules.Credential) TemplateData {
	return TemplateData{
		Identifier: cred.Identifier,
		Guess:      cred.Guess,
		Address:    m.opts.Address,
		Port:       m.opts.Port,
		URL:        m.opts.URL,
		Extra:      m.opts.Extra,
	}
}

// run executes op. A non-zero exit is not an error; failing to start or
// running past the operation timeout is.
func (m *Module) run(ctx context.Context, op *Operation, data TemplateData, stdin string) (Response, error) {
	path, err := exec.LookPath(op.Command)
	if err != nil {
		return Response{}, fmt.Errorf("%s not found in PATH: %w", op.Command, err)
	}

	args := make([]string, 0, len(op.args))
	for _, t := range op.args {
		s, err := render(t, data)
		if err != nil {
			return Response{}, err
		}
		args = append(args, s)
	}

	env := append([]string{}, m.baseEnv...)
	env = append(env,
		"BRUTE_IDENTIFIER="+data.Identifier,
		"BRUTE_GUESS="+data.Guess,
		"BRUTE_ADDRESS="+data.Address,
		"BRUTE_PORT="+strconv.Itoa(data.Port),
		"BRUTE_URL="+data.URL,
	)
	for k, t := range op.env {
		s, err := render(t, data)
		if err != nil {
			return Response{}, err
		}
		env = append(env, k+"="+s)
	}

	if op.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.timeout)
		defer cancel()
	}

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = maxOutput, maxOutput
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = env
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	resp := Response{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return resp, fmt.Errorf("%s: %w", op.Command, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			resp.ExitCode = exitErr.ExitCode()
			return resp, nil
		}
		return resp, fmt.Errorf("%s: %w", op.Command, err)
	}
	return resp, nil
}

func render(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// limitedBuffer keeps the first limit bytes and silently drops the rest so a
// chatty command can't exhaust memory or block on a full pipe.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
