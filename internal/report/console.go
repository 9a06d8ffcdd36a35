package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// Console prints attempts and the final summary with pterm.
type Console struct {
	// Verbose also prints failed attempts.
	Verbose bool
	// Writer defaults to pterm's output when nil.
	Writer io.Writer
}

func displayGuess(g string) string {
	if g == "" {
		return "(empty)"
	}
	return g
}

func (c *Console) Attempt(res engine.AttemptResult) {
	switch res.Outcome {
	case engine.OutcomeSuccess:
		pterm.Success.WithWriter(c.Writer).Printfln("Username: %s | Password found: %s",
			res.Credential.Identifier, displayGuess(res.Credential.Guess))
	case engine.OutcomeError:
		pterm.Error.WithWriter(c.Writer).Printfln("[%d] Username: %s | Password: %s | %s",
			res.Seq, res.Credential.Identifier, displayGuess(res.Credential.Guess), res.Error)
	default:
		if c.Verbose {
			pterm.Warning.WithWriter(c.Writer).Printfln("[%d] Username: %s | Password: %s | Incorrect",
				res.Seq, res.Credential.Identifier, displayGuess(res.Credential.Guess))
		}
	}
}

func (c *Console) Finish(s engine.RunStatus) {
	found := "-"
	if s.Found != nil {
		found = fmt.Sprintf("%s:%s", s.Found.Identifier, displayGuess(s.Found.Guess))
	}
	reason := s.Reason
	if reason == "" {
		reason = "-"
	}

	data := pterm.TableData{
		{"Run", "Module", "Outcome", "Reason", "Attempts", "Errors", "Duration", "Credential"},
		{s.RunID, s.Module, string(s.Outcome), reason, strconv.Itoa(s.Attempts), strconv.Itoa(s.Errors),
			s.Duration().Round(time.Millisecond).String(), found},
	}
	if err := pterm.DefaultTable.WithWriter(c.Writer).WithHasHeader(true).WithBoxed(false).WithData(data).Render(); err != nil {
		pterm.Error.WithWriter(c.Writer).Printfln("failed to render summary: %v", err)
	}
}
