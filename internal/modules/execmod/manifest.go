package execmod

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
)

// regexMatchTimeout bounds a single success-regex evaluation.
const regexMatchTimeout = 100 * time.Millisecond

// Manifest is the YAML description of a module backed by external commands.
type Manifest struct {
	Name           string     `yaml:"name"`
	Category       string     `yaml:"category,omitempty"`
	Description    string     `yaml:"description,omitempty"`
	Author         string     `yaml:"author,omitempty"`
	Defaults       Defaults   `yaml:"defaults,omitempty"`
	Initialize     *Operation `yaml:"initialize"`
	CheckReachable *Operation `yaml:"check_reachable,omitempty"`
	Attempt        *Operation `yaml:"attempt"`
	Success        *Matcher   `yaml:"success"`
}

// Defaults fill in target options the operator did not pass.
type Defaults struct {
	Address string            `yaml:"address,omitempty"`
	Port    int               `yaml:"port,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Extra   map[string]string `yaml:"extra,omitempty"`
}

// Operation is one external command. Args and Env values are text/template
// strings rendered against TemplateData.
type Operation struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout string            `yaml:"timeout,omitempty"`

	timeout time.Duration
	args    []*template.Template
	env     map[string]*template.Template
}

// Matcher decides success from a Response. Every configured check must hold.
type Matcher struct {
	ExitCode    *int   `yaml:"exit_code,omitempty"`
	Contains    string `yaml:"contains,omitempty"`
	NotContains string `yaml:"not_contains,omitempty"`
	Regex       string `yaml:"regex,omitempty"`

	re *regexp2.Regexp
}

// ParseManifest reads and validates a manifest file.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &modules.ContractViolationError{
			Candidate: filepath.Base(path),
			Reason:    fmt.Sprintf("invalid manifest: %v", err),
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest exposes the contract's operation set and
// compiles its templates and matchers.
func (m *Manifest) Validate() error {
	violation := func(reason string) error {
		return &modules.ContractViolationError{Candidate: m.Name, Reason: reason}
	}

	if m.Initialize == nil {
		return violation("missing initialize operation")
	}
	if m.Attempt == nil {
		return violation("missing attempt operation")
	}
	if strings.TrimSpace(m.Attempt.Command) == "" {
		return violation("attempt operation has no command")
	}
	if m.Success == nil {
		return violation("missing success matcher")
	}
	if m.CheckReachable != nil && strings.TrimSpace(m.CheckReachable.Command) == "" {
		return violation("check_reachable operation has no command")
	}

	for label, op := range map[string]*Operation{
		"initialize":      m.Initialize,
		"check_reachable": m.CheckReachable,
		"attempt":         m.Attempt,
	} {
		if op == nil {
			continue
		}
		if err := op.compile(); err != nil {
			return violation(fmt.Sprintf("%s: %v", label, err))
		}
	}
	if err := m.Success.compile(); err != nil {
		return violation(fmt.Sprintf("success: %v", err))
	}
	return nil
}

func (op *Operation) compile() error {
	if op.Timeout != "" {
		d, err := time.ParseDuration(op.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", op.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("negative timeout %q", op.Timeout)
		}
		op.timeout = d
	}

	op.args = make([]*template.Template, 0, len(op.Args))
	for i, a := range op.Args {
		t, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(a)
		if err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
		op.args = append(op.args, t)
	}

	op.env = make(map[string]*template.Template, len(op.Env))
	for k, v := range op.Env {
		t, err := template.New("env_" + k).Option("missingkey=error").Parse(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", k, err)
		}
		op.env[k] = t
	}
	return nil
}

func (mt *Matcher) compile() error {
	if mt.ExitCode == nil && mt.Contains == "" && mt.NotContains == "" && mt.Regex == "" {
		return fmt.Errorf("no condition configured")
	}
	if mt.Regex != "" {
		re, err := regexp2.Compile(mt.Regex, 0)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		re.MatchTimeout = regexMatchTimeout
		mt.re = re
	}
	return nil
}

// Match reports whether resp satisfies every configured condition.
func (mt *Matcher) Match(resp Response) bool {
	if mt.ExitCode != nil && resp.ExitCode != *mt.ExitCode {
		return false
	}
	if mt.Contains != "" && !strings.Contains(resp.Stdout, mt.Contains) {
		return false
	}
	if mt.NotContains != "" && strings.Contains(resp.Stdout, mt.NotContains) {
		return false
	}
	if mt.re != nil {
		ok, err := mt.re.MatchString(resp.Stdout)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Descriptor builds the registry entry for this manifest. category wins over
// the manifest's own category key when non-empty.
func (m *Manifest) Descriptor(category modules.Category, source string) modules.Descriptor {
	if category == "" {
		category = modules.Category(m.Category)
	}
	return modules.Descriptor{
		Name:        m.Name,
		Category:    category,
		Description: m.Description,
		Source:      source,
		Constructor: func(opts modules.Options) (modules.Module, error) {
			return New(m, opts), nil
		},
	}
}

// Load is a modules.LoadFunc for manifest files.
func Load(path string, category modules.Category) (modules.Descriptor, error) {
	m, err := ParseManifest(path)
	if err != nil {
		return modules.Descriptor{}, err
	}
	return m.Descriptor(category, path), nil
}

// LoadExternal reads a manifest supplied outside any module root. Its
// category comes from the manifest, else from the parent directory name.
func LoadExternal(path string) (*Manifest, modules.Descriptor, error) {
	m, err := ParseManifest(path)
	if err != nil {
		return nil, modules.Descriptor{}, err
	}
	category := modules.Category(m.Category)
	if category == "" {
		category = modules.Category(filepath.Base(filepath.Dir(path)))
	}
	return m, m.Descriptor(category, path), nil
}
