// Package report holds the engine.Reporter implementations used by the CLI:
// structured log events, console output and a JSONL findings file.
package report

import (
	"sync"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// Multi fans events out to several reporters, in order.
type Multi []engine.Reporter

func (m Multi) Attempt(res engine.AttemptResult) {
	for _, r := range m {
		r.Attempt(res)
	}
}

func (m Multi) Finish(s engine.RunStatus) {
	for _, r := range m {
		r.Finish(s)
	}
}

// Recorder keeps every event in memory. It is safe for concurrent use and
// may receive events from several runs.
type Recorder struct {
	mu       sync.Mutex
	attempts []engine.AttemptResult
	finals   []engine.RunStatus
}

func (r *Recorder) Attempt(res engine.AttemptResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, res)
}

func (r *Recorder) Finish(s engine.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finals = append(r.finals, s)
}

// Attempts returns a copy of the recorded attempt events.
func (r *Recorder) Attempts() []engine.AttemptResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.AttemptResult(nil), r.attempts...)
}

// Finals returns a copy of the recorded final statuses.
func (r *Recorder) Finals() []engine.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.RunStatus(nil), r.finals...)
}
