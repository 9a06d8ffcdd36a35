// Package tui is a live terminal view of a single run.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tldr-it-stepankutaj/brute/internal/engine"
)

// tailSize is how many recent attempts the view keeps.
const tailSize = 8

type attemptMsg engine.AttemptResult

type finishMsg engine.RunStatus

// Reporter forwards engine events into a running program.
type Reporter struct {
	p *tea.Program
}

func (r *Reporter) Attempt(res engine.AttemptResult) { r.p.Send(attemptMsg(res)) }
func (r *Reporter) Finish(s engine.RunStatus)        { r.p.Send(finishMsg(s)) }

// RunFunc executes the run, reporting through reporter and honouring ctx.
type RunFunc func(ctx context.Context, reporter engine.Reporter) (engine.RunStatus, error)

// model is a plain text Bubble Tea model. No icons.
type model struct {
	module     string
	identifier string
	cancel     context.CancelFunc

	attempts int
	errors   int
	last     string
	tail     []string
	status   *engine.RunStatus
	stopping bool
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.status != nil {
				return m, tea.Quit
			}
			// The engine stops at the next attempt boundary and sends its
			// final status; quit then.
			m.stopping = true
			m.cancel()
			return m, nil
		}
	case attemptMsg:
		m.attempts++
		if msg.Outcome == engine.OutcomeError {
			m.errors++
		}
		m.last = msg.Credential.Identifier + ":" + msg.Credential.Guess
		line := fmt.Sprintf("#%d %-7s %s", msg.Seq, msg.Outcome, m.last)
		if msg.Error != "" {
			line += "  (" + msg.Error + ")"
		}
		m.tail = append(m.tail, line)
		if len(m.tail) > tailSize {
			m.tail = m.tail[len(m.tail)-tailSize:]
		}
		return m, nil
	case finishMsg:
		s := engine.RunStatus(msg)
		m.status = &s
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "brute: %s as %s (press 'q' to stop)\n\n", m.module, m.identifier)
	fmt.Fprintf(&b, "Attempts: %d  Errors: %d\n", m.attempts, m.errors)
	fmt.Fprintf(&b, "Last: %s\n\n", m.last)
	for _, l := range m.tail {
		b.WriteString(l + "\n")
	}

	switch {
	case m.status != nil:
		fmt.Fprintf(&b, "\nStatus: %s", m.status.Outcome)
		if m.status.Reason != "" {
			fmt.Fprintf(&b, " (%s)", m.status.Reason)
		}
		if m.status.Found != nil {
			fmt.Fprintf(&b, "\nFound: %s:%s", m.status.Found.Identifier, m.status.Found.Guess)
		}
		b.WriteString("\n")
	case m.stopping:
		b.WriteString("\nStatus: stopping after the current attempt...\n")
	default:
		b.WriteString("\nStatus: running\n")
	}
	return b.String()
}

// Run starts the view and the run together. Quitting the view cancels ctx
// for the run; Run returns once the run itself has returned.
func Run(ctx context.Context, module, identifier string, run RunFunc, opts ...tea.ProgramOption) (engine.RunStatus, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	initial := model{module: module, identifier: identifier, cancel: cancel}
	p := tea.NewProgram(initial, opts...)

	type result struct {
		status engine.RunStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := run(ctx, &Reporter{p: p})
		done <- result{status, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return engine.RunStatus{}, fmt.Errorf("tui: %w", err)
	}
	cancel()
	r := <-done
	return r.status, r.err
}
