package brute

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/viper"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/report"
	"github.com/tldr-it-stepankutaj/brute/internal/tui"
	"github.com/tldr-it-stepankutaj/brute/internal/wordlist"
)

// attackFlags are the run parameters taken from flags, env or config file.
type attackFlags struct {
	module    string
	username  string
	wordlist  string
	address   string
	port      int
	url       string
	maxErrors int
	skipBlank bool
	verbose   bool
	tui       bool
}

func attackFlagsFromViper() (attackFlags, error) {
	f := attackFlags{
		module:    viper.GetString("module"),
		username:  viper.GetString("username"),
		wordlist:  viper.GetString("wordlist"),
		address:   viper.GetString("address"),
		port:      viper.GetInt("port"),
		url:       viper.GetString("url"),
		maxErrors: viper.GetInt("max_errors"),
		skipBlank: viper.GetBool("skip_blank"),
		verbose:   viper.GetBool("verbose"),
		tui:       viper.GetBool("tui"),
	}
	switch {
	case f.username == "":
		return f, app.Invalid("username", "is required (use -u)")
	case f.wordlist == "":
		return f, app.Invalid("wordlist", "is required (use -w)")
	case f.port < 0 || f.port > 65535:
		return f, app.Invalid("port", "must be between 0 and 65535")
	}
	return f, nil
}

// runAttack runs one module against one username and wordlist.
func runAttack(ctx context.Context) error {
	flags, err := attackFlagsFromViper()
	if err != nil {
		return err
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg := s.appCtx.Config

	d, err := s.reg.Resolve(flags.module)
	if err != nil {
		if errors.Is(err, modules.ErrModuleNotFound) {
			return fmt.Errorf("%w (use --list_modules)", err)
		}
		return err
	}

	src, err := wordlist.Open(flags.wordlist)
	if err != nil {
		return err
	}
	defer src.Close()
	if flags.skipBlank {
		src = wordlist.Filter(src, wordlist.NonBlank)
	}

	mod, err := d.New(modules.Options{
		Address:  flags.address,
		Port:     flags.port,
		URL:      flags.url,
		Username: flags.username,
		Delay:    cfg.Delay,
	})
	if err != nil {
		return fmt.Errorf("failed to construct module %s: %w", d.Name, err)
	}

	runID := uuid.NewString()
	findings, err := report.OpenJSONL(s.ws.FindingsPath(runID))
	if err != nil {
		return err
	}
	defer func() {
		if err := findings.Close(); err != nil {
			s.log.WithError(err).Warn("failed to write findings")
		}
	}()

	console := &report.Console{Verbose: flags.verbose}
	base := report.Multi{report.NewLog(s.log, d.Name), findings}

	newEngine := func(r engine.Reporter) *engine.Engine {
		return engine.New(engine.Config{
			Module:               d.Name,
			Identifier:           flags.username,
			Delay:                cfg.Delay,
			MaxConsecutiveErrors: flags.maxErrors,
			Reporter:             r,
			Logger:               s.log,
			RunID:                runID,
		})
	}

	var status engine.RunStatus
	if flags.tui {
		status, err = tui.Run(ctx, d.Name, flags.username, func(ctx context.Context, r engine.Reporter) (engine.RunStatus, error) {
			return newEngine(append(report.Multi{r}, base...)).Run(ctx, mod, src)
		})
		console.Finish(status)
	} else {
		pterm.Info.Printfln("Running %s against %s with %s (delay %s)", d.Key(), target(flags), flags.wordlist, cfg.Delay)
		status, err = newEngine(append(report.Multi{console}, base...)).Run(ctx, mod, src)
	}
	pterm.Info.Printfln("Findings written to %s", s.ws.FindingsPath(runID))
	return err
}

func target(f attackFlags) string {
	switch {
	case f.url != "":
		return f.url
	case f.address != "" && f.port > 0:
		return fmt.Sprintf("%s:%d", f.address, f.port)
	case f.address != "":
		return f.address
	}
	return "module default target"
}
