package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
)

// State is a step of the run state machine.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateReachabilityChecked
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateReachabilityChecked:
		return "reachability_checked"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateAborted }

// Outcome of a single attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// RunOutcome is the terminal result of a run.
type RunOutcome string

const (
	RunCredentialFound RunOutcome = "credential_found"
	RunExhausted       RunOutcome = "exhausted"
	RunAborted         RunOutcome = "aborted"
)

// Abort reasons recorded on RunStatus.Reason.
const (
	ReasonInitFailed   = "initialization failed"
	ReasonUnreachable  = "target unreachable"
	ReasonCancelled    = "cancelled"
	ReasonErrorStreak  = "too many consecutive errors"
	ReasonWordlistRead = "wordlist read failed"
)

// AttemptResult is emitted once per attempt and never mutated afterwards.
type AttemptResult struct {
	RunID      string             `json:"run_id"`
	Seq        int                `json:"seq"`
	Credential modules.Credential `json:"credential"`
	Outcome    Outcome            `json:"outcome"`
	Response   modules.Response   `json:"response,omitempty"`
	Error      string             `json:"error,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// RunStatus is the terminal record of a run.
type RunStatus struct {
	RunID    string              `json:"run_id"`
	Module   string              `json:"module,omitempty"`
	Outcome  RunOutcome          `json:"outcome"`
	Reason   string              `json:"reason,omitempty"`
	Found    *modules.Credential `json:"found,omitempty"`
	Attempts int                 `json:"attempts"`
	Errors   int                 `json:"errors"`
	Started  time.Time           `json:"started"`
	Finished time.Time           `json:"finished"`
}

// Duration is the wall-clock length of the run.
func (s RunStatus) Duration() time.Duration { return s.Finished.Sub(s.Started) }

// Reporter receives per-attempt events and the final status. Implementations
// are called from the run's goroutine only.
type Reporter interface {
	Attempt(res AttemptResult)
	Finish(status RunStatus)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Attempt(AttemptResult) {}
func (NopReporter) Finish(RunStatus)      {}

var (
	// ErrEngineReused is returned when Run is called on a finished engine.
	ErrEngineReused = errors.New("engine already used for a run")

	// ErrTooManyErrors is returned when consecutive attempt errors reach the limit.
	ErrTooManyErrors = errors.New("too many consecutive attempt errors")
)

// AdapterError wraps an Initialize failure. No attempts are made.
type AdapterError struct {
	Err error
}

func (e *AdapterError) Error() string { return "module initialization failed: " + e.Err.Error() }

func (e *AdapterError) Unwrap() error { return e.Err }

// ReachabilityError wraps a failed reachability probe.
type ReachabilityError struct {
	Err error
}

func (e *ReachabilityError) Error() string { return "target unreachable: " + e.Err.Error() }

func (e *ReachabilityError) Unwrap() error { return e.Err }

// StreakError is returned when a run aborts on consecutive attempt errors.
// Last is the final attempt error of the streak.
type StreakError struct {
	Count int
	Last  error
}

func (e *StreakError) Error() string {
	return fmt.Sprintf("%d consecutive attempt errors, last: %v", e.Count, e.Last)
}

func (e *StreakError) Unwrap() []error { return []error{ErrTooManyErrors, e.Last} }
