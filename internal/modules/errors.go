package modules

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is returned by Resolve for a name never registered.
	ErrModuleNotFound = errors.New("module not found")

	// ErrDuplicateModule marks a (category, name) collision.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrContractViolation marks a candidate that does not satisfy the Module contract.
	ErrContractViolation = errors.New("module contract violation")

	// ErrAttempt marks a single-attempt transport failure. The engine counts
	// these towards its consecutive-error limit instead of aborting.
	ErrAttempt = errors.New("attempt failed")
)

// DuplicateModuleError is returned by Register on a collision.
type DuplicateModuleError struct {
	Category Category
	Name     string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %s/%s already registered", e.Category, e.Name)
}

func (e *DuplicateModuleError) Unwrap() error { return ErrDuplicateModule }

// ContractViolationError explains why a candidate was rejected.
type ContractViolationError struct {
	Candidate string
	Reason    string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("module %q rejected: %s", e.Candidate, e.Reason)
}

func (e *ContractViolationError) Unwrap() error { return ErrContractViolation }

// AttemptError wraps a transport failure during one attempt.
type AttemptError struct {
	Err error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return ErrAttempt.Error()
	}
	return "attempt failed: " + e.Err.Error()
}

func (e *AttemptError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAttempt}
	}
	return []error{ErrAttempt, e.Err}
}
