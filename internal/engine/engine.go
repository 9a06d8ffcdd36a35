// Package engine drives a module through the initialize, probe, attempt and
// delay loop. One Engine serves one run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/wordlist"
)

const (
	// DefaultDelay is the pause between attempts.
	DefaultDelay = 5 * time.Second
	// DefaultMaxConsecutiveErrors aborts a run hammering a dead target.
	DefaultMaxConsecutiveErrors = 5
)

// Config configures a single run.
type Config struct {
	// Module is the module name, recorded on events.
	Module string
	// Identifier is the fixed username or identifier every guess is paired with.
	Identifier string
	// Delay between attempts. It applies after errors too.
	Delay time.Duration
	// MaxConsecutiveErrors is the error streak that aborts the run.
	// Zero means DefaultMaxConsecutiveErrors; negative disables the limit.
	MaxConsecutiveErrors int
	Reporter             Reporter
	Logger               logrus.FieldLogger

	// RunID is generated when empty.
	RunID string
	// Sleep and Now are replaceable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Engine runs exactly one module against one wordlist.
type Engine struct {
	cfg Config

	mu    sync.Mutex
	state State
	used  bool
}

// New returns an engine in the Created state.
func New(cfg Config) *Engine {
	if cfg.MaxConsecutiveErrors == 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, state: StateCreated}
}

// RunID identifies this engine's run on every event it emits.
func (e *Engine) RunID() string { return e.cfg.RunID }

// State returns the current state. Safe to call from other goroutines.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.cfg.Logger.WithFields(logrus.Fields{"run_id": e.cfg.RunID, "state": s.String()}).Debug("run state changed")
}

// Run drives m over src until a credential is found, the wordlist is
// exhausted, or the run aborts. The returned status is also delivered to the
// Reporter. The error is non-nil only for aborted runs.
//
// Cancelling ctx takes effect before the next attempt or during the delay;
// an attempt already in flight is allowed to finish.
func (e *Engine) Run(ctx context.Context, m modules.Module, src wordlist.Source) (status RunStatus, err error) {
	e.mu.Lock()
	if e.used {
		e.mu.Unlock()
		return RunStatus{}, ErrEngineReused
	}
	e.used = true
	e.mu.Unlock()

	log := e.cfg.Logger.WithFields(logrus.Fields{"run_id": e.cfg.RunID, "module": e.cfg.Module})
	status = RunStatus{
		RunID:   e.cfg.RunID,
		Module:  e.cfg.Module,
		Started: e.cfg.Now(),
	}

	defer func() {
		if c, ok := m.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				log.WithError(cerr).Warn("failed to release module")
			}
		}
		status.Finished = e.cfg.Now()
		e.cfg.Reporter.Finish(status)
	}()

	abort := func(reason string, cause error) (RunStatus, error) {
		status.Outcome = RunAborted
		status.Reason = reason
		e.setState(StateAborted)
		log.WithField("reason", reason).WithError(cause).Warn("run aborted")
		return status, cause
	}

	if err := ctx.Err(); err != nil {
		return abort(ReasonCancelled, err)
	}

	if err := m.Initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return abort(ReasonCancelled, ctx.Err())
		}
		return abort(ReasonInitFailed, &AdapterError{Err: err})
	}
	e.setState(StateInitialized)

	if p, ok := m.(modules.Prober); ok {
		switch err := p.CheckReachable(ctx); {
		case errors.Is(err, modules.ErrProbeNotImplemented):
			log.Debug("no reachability check, assuming reachable")
		case err != nil:
			if ctx.Err() != nil {
				return abort(ReasonCancelled, ctx.Err())
			}
			return abort(ReasonUnreachable, &ReachabilityError{Err: err})
		default:
			e.setState(StateReachabilityChecked)
		}
	}

	e.setState(StateRunning)
	log.WithFields(logrus.Fields{
		"identifier": e.cfg.Identifier,
		"delay":      e.cfg.Delay.String(),
	}).Info("run started")

	streak := 0
	for seq := 1; ; seq++ {
		if err := ctx.Err(); err != nil {
			return abort(ReasonCancelled, err)
		}
		if !src.Next() {
			if err := src.Err(); err != nil {
				return abort(ReasonWordlistRead, fmt.Errorf("read wordlist: %w", err))
			}
			break
		}
		cred := modules.Credential{Identifier: e.cfg.Identifier, Guess: src.Text()}

		// The delay sits between attempts only; no trailing wait after the last one.
		if seq > 1 {
			if err := e.cfg.Sleep(ctx, e.cfg.Delay); err != nil {
				return abort(ReasonCancelled, err)
			}
			if err := ctx.Err(); err != nil {
				return abort(ReasonCancelled, err)
			}
		}

		res, attemptErr := e.attempt(ctx, m, seq, cred)
		status.Attempts++
		e.cfg.Reporter.Attempt(res)

		switch res.Outcome {
		case OutcomeSuccess:
			found := cred
			status.Found = &found
			status.Outcome = RunCredentialFound
			e.setState(StateCompleted)
			log.WithField("attempts", status.Attempts).Info("credential found")
			return status, nil

		case OutcomeError:
			status.Errors++
			streak++
			log.WithFields(logrus.Fields{"seq": seq, "streak": streak}).WithError(attemptErr).Debug("attempt error")
			if e.cfg.MaxConsecutiveErrors > 0 && streak >= e.cfg.MaxConsecutiveErrors {
				return abort(ReasonErrorStreak, &StreakError{Count: streak, Last: attemptErr})
			}

		default:
			streak = 0
		}
	}

	status.Outcome = RunExhausted
	e.setState(StateCompleted)
	log.WithField("attempts", status.Attempts).Info("wordlist exhausted")
	return status, nil
}

// attempt performs one try. The module sees a context that is never
// cancelled by the caller so an interrupt can't leave it half-way through.
func (e *Engine) attempt(ctx context.Context, m modules.Module, seq int, cred modules.Credential) (AttemptResult, error) {
	res := AttemptResult{
		RunID:      e.cfg.RunID,
		Seq:        seq,
		Credential: cred,
	}

	resp, err := m.Attempt(context.WithoutCancel(ctx), cred)
	res.Timestamp = e.cfg.Now()
	res.Response = resp
	if err != nil {
		var ae *modules.AttemptError
		if !errors.As(err, &ae) {
			err = &modules.AttemptError{Err: err}
		}
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res, err
	}
	if m.IsSuccess(resp) {
		res.Outcome = OutcomeSuccess
	} else {
		res.Outcome = OutcomeFailure
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
