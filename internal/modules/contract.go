package modules

import (
	"context"
	"errors"
	"time"
)

// Category is the class of target a module addresses.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryWeb      Category = "web"
)

// BuiltinCategories are always known to a Registry.
var BuiltinCategories = []Category{CategoryProtocol, CategoryWeb}

// Credential is one unit of work drawn from a wordlist.
type Credential struct {
	Identifier string `json:"identifier"`
	Guess      string `json:"guess"`
}

// Response is the raw, adapter-specific output of one attempt.
type Response any

// Module is the contract every attack module satisfies. An instance is bound
// to a single run; the engine owns it for the duration of that run.
type Module interface {
	// Initialize prepares client state before the first attempt.
	Initialize(ctx context.Context) error
	// Attempt performs exactly one authentication try and returns the raw
	// target output. It must not decide success.
	Attempt(ctx context.Context, cred Credential) (Response, error)
	// IsSuccess is a pure predicate over a Response.
	IsSuccess(resp Response) bool
}

// Prober is the optional reachability check. Modules that cannot offer one
// simply don't implement it.
type Prober interface {
	CheckReachable(ctx context.Context) error
}

// ErrProbeNotImplemented lets an adapter that always satisfies Prober (such as
// a generic one) report that this particular instance has no probe.
var ErrProbeNotImplemented = errors.New("reachability check not implemented")

// Options is the target configuration handed to a Constructor.
type Options struct {
	Address  string
	Port     int
	URL      string
	Username string
	Delay    time.Duration
	Extra    map[string]string
}

// Constructor builds a fresh Module instance for one run.
type Constructor func(opts Options) (Module, error)

// Descriptor identifies a registered module. It is immutable once registered.
type Descriptor struct {
	Name        string
	Category    Category
	Description string
	// Source is where the module came from: a manifest path or "builtin".
	Source      string
	Constructor Constructor
}

// Key is the (category, name) pair that must be unique in a registry.
func (d Descriptor) Key() string { return string(d.Category) + "/" + d.Name }

// New constructs a Module for a run.
func (d Descriptor) New(opts Options) (Module, error) {
	if d.Constructor == nil {
		return nil, &ContractViolationError{Candidate: d.Key(), Reason: "no constructor"}
	}
	m, err := d.Constructor(opts)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ContractViolationError{Candidate: d.Key(), Reason: "constructor returned nil module"}
	}
	return m, nil
}
