package report

import (
	"github.com/sirupsen/logrus"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// Log writes one structured logrus entry per attempt and one for the final
// status. Guesses are only included at debug level.
type Log struct {
	Logger logrus.FieldLogger
	Module string
}

func NewLog(l logrus.FieldLogger, module string) *Log {
	return &Log{Logger: l, Module: module}
}

func (r *Log) Attempt(res engine.AttemptResult) {
	entry := r.Logger.WithFields(logrus.Fields{
		"run_id":     res.RunID,
		"module":     r.Module,
		"seq":        res.Seq,
		"identifier": res.Credential.Identifier,
		"outcome":    string(res.Outcome),
	})
	if res.Error != "" {
		entry = entry.WithField("error", res.Error)
	}

	switch res.Outcome {
	case engine.OutcomeSuccess:
		entry.WithField("guess", res.Credential.Guess).Info("attempt succeeded")
	case engine.OutcomeError:
		entry.Warn("attempt error")
	default:
		entry.WithField("guess", res.Credential.Guess).Debug("attempt failed")
	}
}

func (r *Log) Finish(s engine.RunStatus) {
	fields := logrus.Fields{
		"run_id":   s.RunID,
		"module":   r.Module,
		"outcome":  string(s.Outcome),
		"attempts": s.Attempts,
		"errors":   s.Errors,
		"duration": s.Duration().String(),
	}
	if s.Reason != "" {
		fields["reason"] = s.Reason
	}
	if s.Found != nil {
		fields["identifier"] = s.Found.Identifier
	}

	entry := r.Logger.WithFields(fields)
	if s.Outcome == engine.RunAborted {
		entry.Warn("run finished")
		return
	}
	entry.Info("run finished")
}
