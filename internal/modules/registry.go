package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// placeholderNames are the markers left in scaffolded, unedited stubs.
var placeholderNames = map[string]struct{}{
	"name":     {},
	"modname":  {},
	"template": {},
}

// Entry is one (category, name) pair returned by List.
type Entry struct {
	Category    Category
	Name        string
	Description string
}

// Diagnostic records a candidate skipped during discovery.
type Diagnostic struct {
	Path string
	Name string
	Err  error
}

func (d Diagnostic) String() string { return fmt.Sprintf("%s: %v", d.Path, d.Err) }

// LoadFunc turns a candidate file found during discovery into a Descriptor.
// category is the name of the directory the candidate was found in.
type LoadFunc func(path string, category Category) (Descriptor, error)

// Registry stores available modules, indexed by category and name.
// It is safe for concurrent use; mutations take a single writer lock.
type Registry struct {
	mu         sync.RWMutex
	byKey      map[string]Descriptor
	byCategory map[Category][]string
	byName     map[string][]string // keys per name, in registration order
	order      []Category
	categories map[Category]struct{}
	rejected   map[string]error
	log        logrus.FieldLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = l }
}

// WithCategories adds categories beyond the built-in ones.
func WithCategories(cats ...Category) Option {
	return func(r *Registry) {
		for _, c := range cats {
			if c != "" {
				r.categories[c] = struct{}{}
			}
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byKey:      make(map[string]Descriptor),
		byCategory: make(map[Category][]string),
		byName:     make(map[string][]string),
		categories: make(map[Category]struct{}),
		rejected:   make(map[string]error),
		log:        logrus.StandardLogger(),
	}
	for _, c := range BuiltinCategories {
		r.categories[c] = struct{}{}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Validate checks a descriptor against the registration rules.
func Validate(d Descriptor) error {
	name := d.Name
	switch {
	case strings.TrimSpace(name) == "":
		return &ContractViolationError{Candidate: d.Key(), Reason: "empty name"}
	case isPlaceholder(name):
		return &ContractViolationError{Candidate: d.Key(), Reason: "name is a template placeholder"}
	case !validName.MatchString(name):
		return &ContractViolationError{Candidate: d.Key(), Reason: "name must match " + validName.String()}
	case d.Category == "":
		return &ContractViolationError{Candidate: d.Key(), Reason: "empty category"}
	case !validName.MatchString(string(d.Category)):
		return &ContractViolationError{Candidate: d.Key(), Reason: "invalid category"}
	case d.Constructor == nil:
		return &ContractViolationError{Candidate: d.Key(), Reason: "no constructor"}
	}
	return nil
}

// ValidName reports whether name is usable as a module or category name.
func ValidName(name string) bool {
	return validName.MatchString(name) && !isPlaceholder(name)
}

func isPlaceholder(name string) bool {
	if strings.Contains(name, "??") || strings.Contains(name, "{{") {
		return true
	}
	_, ok := placeholderNames[strings.ToLower(name)]
	return ok
}

// Register adds a module. Discovery, runtime additions and Go callers all
// go through here.
func (r *Registry) Register(d Descriptor) error {
	if err := Validate(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := d.Key()
	if _, exists := r.byKey[key]; exists {
		return &DuplicateModuleError{Category: d.Category, Name: d.Name}
	}
	r.byKey[key] = d
	if _, seen := r.byCategory[d.Category]; !seen {
		r.order = append(r.order, d.Category)
	}
	r.byCategory[d.Category] = append(r.byCategory[d.Category], d.Name)
	r.byName[d.Name] = append(r.byName[d.Name], key)
	r.categories[d.Category] = struct{}{}
	delete(r.rejected, d.Name)
	return nil
}

// Remove drops a module. It reports whether anything was removed.
func (r *Registry) Remove(category Category, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(category) + "/" + name
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	names := r.byCategory[category]
	for i, n := range names {
		if n == name {
			r.byCategory[category] = append(names[:i:i], names[i+1:]...)
			break
		}
	}
	keys := r.byName[name]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(r.byName, name)
	} else {
		r.byName[name] = keys
	}
	return true
}

// Lookup finds a module by name across all categories. Names are
// case-sensitive. If two categories share a name the module registered
// first wins, whatever order its category was first seen in.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.byName[name]
	if len(matches) == 0 {
		return Descriptor{}, false
	}
	found := r.byKey[matches[0]]
	if len(matches) > 1 {
		r.log.WithFields(logrus.Fields{
			"module":  name,
			"matches": append([]string(nil), matches...),
			"chosen":  found.Key(),
		}).Warn("module name is ambiguous across categories")
	}
	return found, true
}

// Resolve is Lookup with an error: ErrModuleNotFound, or the contract
// violation recorded when a candidate by that name was rejected.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	if d, ok := r.Lookup(name); ok {
		return d, nil
	}
	r.mu.RLock()
	rej, ok := r.rejected[name]
	r.mu.RUnlock()
	if ok {
		return Descriptor{}, rej
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

// List returns a snapshot grouped by category. Categories appear in the
// order they were first registered; modules in insertion order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.byKey))
	for _, cat := range r.order {
		for _, name := range r.byCategory[cat] {
			d := r.byKey[string(cat)+"/"+name]
			out = append(out, Entry{Category: cat, Name: name, Description: d.Description})
		}
	}
	return out
}

// Categories returns the sorted set of known categories.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Category, 0, len(r.categories))
	for c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasCategory reports whether c is a known category.
func (r *Registry) HasCategory(c Category) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.categories[c]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Discover scans each root, in order, for candidates laid out as
// <root>/<category>/<name>.yaml. Every candidate goes through load and then
// Register. Broken candidates are skipped and reported as diagnostics.
func (r *Registry) Discover(load LoadFunc, locations ...string) []Diagnostic {
	var diags []Diagnostic
	for _, root := range locations {
		catDirs, err := os.ReadDir(root)
		if err != nil {
			diags = append(diags, r.reject(root, "", fmt.Errorf("scan module root: %w", err)))
			continue
		}
		for _, cd := range catDirs {
			if !cd.IsDir() || strings.HasPrefix(cd.Name(), ".") {
				continue
			}
			category := Category(cd.Name())
			dir := filepath.Join(root, cd.Name())
			files, err := os.ReadDir(dir)
			if err != nil {
				diags = append(diags, r.reject(dir, "", fmt.Errorf("scan category: %w", err)))
				continue
			}
			for _, f := range files {
				if f.IsDir() || !IsManifestFile(f.Name()) {
					continue
				}
				path := filepath.Join(dir, f.Name())
				name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
				d, err := load(path, category)
				if err == nil && d.Name != name {
					err = &ContractViolationError{
						Candidate: name,
						Reason:    fmt.Sprintf("manifest name %q does not match file name", d.Name),
					}
				}
				if err == nil {
					err = r.Register(d)
				}
				if err != nil {
					diags = append(diags, r.reject(path, name, err))
					continue
				}
				r.log.WithFields(logrus.Fields{
					"module":   d.Name,
					"category": d.Category,
					"source":   path,
				}).Debug("module registered")
			}
		}
	}
	return diags
}

func (r *Registry) reject(path, name string, err error) Diagnostic {
	r.log.WithFields(logrus.Fields{"path": path}).WithError(err).Warn("module candidate skipped")
	if name != "" {
		r.mu.Lock()
		if _, ok := r.rejected[name]; !ok {
			r.rejected[name] = err
		}
		r.mu.Unlock()
	}
	return Diagnostic{Path: path, Name: name, Err: err}
}

// IsManifestFile reports whether a file name looks like a module manifest.
func IsManifestFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return !strings.HasPrefix(name, ".")
	}
	return false
}
