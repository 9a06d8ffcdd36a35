// Package campaign runs several independent guessing runs from one YAML plan.
package campaign

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/wordlist"
)

// DefaultConcurrency is used when a plan does not set one.
const DefaultConcurrency = 1

// ReasonSetup marks runs that never started: unknown module, unreadable
// wordlist or a failing constructor.
const ReasonSetup = "setup_failed"

// Plan is a campaign definition.
type Plan struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Runs        []Run  `yaml:"runs" json:"runs"`
}

// Run is one module against one identifier and one wordlist.
type Run struct {
	ID        string            `yaml:"id,omitempty" json:"id,omitempty"`
	Module    string            `yaml:"module" json:"module"`
	Username  string            `yaml:"username" json:"username"`
	Wordlist  string            `yaml:"wordlist,omitempty" json:"wordlist,omitempty"`
	Guesses   []string          `yaml:"guesses,omitempty" json:"guesses,omitempty"`
	Address   string            `yaml:"address,omitempty" json:"address,omitempty"`
	Port      int               `yaml:"port,omitempty" json:"port,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`
	Delay     string            `yaml:"delay,omitempty" json:"delay,omitempty"`
	MaxErrors int               `yaml:"max_errors,omitempty" json:"max_errors,omitempty"`
	SkipBlank bool              `yaml:"skip_blank,omitempty" json:"skip_blank,omitempty"`
	Extra     map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`

	delay    time.Duration
	hasDelay bool
}

// LoadPlan loads and validates a plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse campaign: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate assigns missing run IDs and checks every run is usable.
func (p *Plan) Validate() error {
	if len(p.Runs) == 0 {
		return app.Invalid("runs", "campaign has no runs")
	}
	if p.Concurrency < 0 {
		return app.Invalid("concurrency", "cannot be negative")
	}
	seen := make(map[string]bool, len(p.Runs))
	for i := range p.Runs {
		r := &p.Runs[i]
		if r.ID == "" {
			r.ID = fmt.Sprintf("run_%d", i+1)
		}
		if seen[r.ID] {
			return app.Invalid("runs", "duplicate run id %q", r.ID)
		}
		seen[r.ID] = true

		field := func(name string) string { return fmt.Sprintf("runs.%s.%s", r.ID, name) }
		if strings.TrimSpace(r.Module) == "" {
			return app.Invalid(field("module"), "is required")
		}
		if (r.Wordlist == "") == (len(r.Guesses) == 0) {
			return app.Invalid(field("wordlist"), "exactly one of wordlist or guesses is required")
		}
		if r.Delay != "" {
			d, err := time.ParseDuration(r.Delay)
			if err != nil || d < 0 {
				return app.Invalid(field("delay"), "invalid duration %q", r.Delay)
			}
			r.delay, r.hasDelay = d, true
		}
	}
	return nil
}

// ReporterFunc builds the reporter for one run. The returned closer, if any,
// is called after the run finishes.
type ReporterFunc func(run Run, runID string) (engine.Reporter, func() error, error)

// Options tune Execute.
type Options struct {
	// Concurrency overrides the plan's value when positive.
	Concurrency int
	// Reporter is optional; runs report to nothing when nil.
	Reporter ReporterFunc
	// Sleep replaces the engine's delay wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result is the outcome of one run in plan order.
type Result struct {
	ID     string           `json:"id"`
	RunID  string           `json:"run_id"`
	Module string           `json:"module"`
	Status engine.RunStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// Report summarises a campaign.
type Report struct {
	Campaign    string        `json:"campaign"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Concurrency int           `json:"concurrency"`
	Found       int           `json:"found"`
	Exhausted   int           `json:"exhausted"`
	Failed      int           `json:"failed"`
	Results     []Result      `json:"results"`
}

// Execute runs every run of plan as its own engine and module instance, at
// most Concurrency at a time. A failing run never stops the others.
// Cancelling appCtx.Ctx aborts the in-progress runs at their next delay
// boundary and marks runs that never started as cancelled.
func Execute(appCtx app.Context, reg *modules.Registry, plan *Plan, opts Options) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	concurrency := plan.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	log := appCtx.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("campaign", plan.Name)

	report := &Report{
		Campaign:    plan.Name,
		StartTime:   time.Now(),
		Concurrency: concurrency,
		Results:     make([]Result, len(plan.Runs)),
	}
	log.WithFields(logrus.Fields{"runs": len(plan.Runs), "concurrency": concurrency}).Info("campaign started")

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, run := range plan.Runs {
		i, run := i, run
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-appCtx.Ctx.Done():
				report.Results[i] = cancelled(run)
				return
			}
			defer func() { <-sem }()
			report.Results[i] = executeRun(appCtx, reg, run, opts, log)
		}()
	}
	wg.Wait()

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	for _, r := range report.Results {
		switch r.Status.Outcome {
		case engine.RunCredentialFound:
			report.Found++
		case engine.RunExhausted:
			report.Exhausted++
		default:
			report.Failed++
		}
	}
	log.WithFields(logrus.Fields{
		"found":     report.Found,
		"exhausted": report.Exhausted,
		"failed":    report.Failed,
	}).Info("campaign finished")
	return report, nil
}

func cancelled(run Run) Result {
	return Result{
		ID:     run.ID,
		Module: run.Module,
		Status: engine.RunStatus{Module: run.Module, Outcome: engine.RunAborted, Reason: engine.ReasonCancelled},
		Error:  "cancelled before start",
	}
}

func executeRun(appCtx app.Context, reg *modules.Registry, run Run, opts Options, log logrus.FieldLogger) Result {
	runID := uuid.NewString()
	res := Result{ID: run.ID, RunID: runID, Module: run.Module}
	log = log.WithFields(logrus.Fields{"run": run.ID, "run_id": runID})

	setupFailed := func(err error) Result {
		res.Status = engine.RunStatus{RunID: runID, Module: run.Module, Outcome: engine.RunAborted, Reason: ReasonSetup}
		res.Error = err.Error()
		log.WithError(err).Warn("run could not start")
		return res
	}

	d, err := reg.Resolve(run.Module)
	if err != nil {
		return setupFailed(err)
	}

	var src wordlist.Source
	if run.Wordlist != "" {
		src, err = wordlist.Open(run.Wordlist)
		if err != nil {
			return setupFailed(err)
		}
	} else {
		src = wordlist.FromSlice(run.Guesses)
	}
	defer func() { _ = src.Close() }()
	if run.SkipBlank {
		src = wordlist.Filter(src, wordlist.NonBlank)
	}

	mod, err := d.New(modules.Options{
		Address:  run.Address,
		Port:     run.Port,
		URL:      run.URL,
		Username: run.Username,
		Delay:    run.effectiveDelay(appCtx.Config.Delay),
		Extra:    run.Extra,
	})
	if err != nil {
		return setupFailed(fmt.Errorf("construct module %s: %w", run.Module, err))
	}

	var reporter engine.Reporter
	if opts.Reporter != nil {
		r, closeFn, err := opts.Reporter(run, runID)
		if err != nil {
			return setupFailed(err)
		}
		reporter = r
		if closeFn != nil {
			defer func() {
				if err := closeFn(); err != nil {
					log.WithError(err).Warn("failed to close run reporter")
				}
			}()
		}
	}

	maxErrors := run.MaxErrors
	if maxErrors == 0 {
		maxErrors = appCtx.Config.MaxConsecutiveErrors
	}
	eng := engine.New(engine.Config{
		Module:               d.Name,
		Identifier:           run.Username,
		Delay:                run.effectiveDelay(appCtx.Config.Delay),
		MaxConsecutiveErrors: maxErrors,
		Reporter:             reporter,
		Logger:               log,
		RunID:                runID,
		Sleep:                opts.Sleep,
	})

	status, err := eng.Run(appCtx.Ctx, mod, src)
	res.Status = status
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (r Run) effectiveDelay(fallback time.Duration) time.Duration {
	if r.hasDelay {
		return r.delay
	}
	return fallback
}

// SaveReport writes the campaign report as indented JSON.
func SaveReport(report *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return w.Flush()
}

// ReportPath names the report file for a campaign started at t.
func ReportPath(ws app.WorkspaceHandle, name string, t time.Time) string {
	return ws.Path("reports", fmt.Sprintf("campaign-%s-%s.json", sanitizeFilename(name), t.Format("20060102-150405")))
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "unnamed"
	}
	replacer := strings.NewReplacer(" ", "-", "/", "-", "\\", "-", ":", "-")
	return strings.ToLower(replacer.Replace(name))
}
