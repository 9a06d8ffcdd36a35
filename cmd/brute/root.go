package brute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/logger"
	"github.com/tldr-it-stepankutaj/brute/internal/modules"
	"github.com/tldr-it-stepankutaj/brute/internal/modules/execmod"
	"github.com/tldr-it-stepankutaj/brute/internal/workspace"
	"github.com/tldr-it-stepankutaj/brute/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "brute",
	Short: "brute: pluggable credential testing for authorized assessments",
	Long: "brute pairs one username with every entry of a wordlist and tries each pair against a target through a module.\n" +
		"Modules are YAML manifests discovered under <workspace>/modules/<category>/ and any --modules root.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return initConfig(cmd) },
	RunE:              func(cmd *cobra.Command, _ []string) error { return runRoot(cmd) },
}

// runRoot dispatches the root command on the mode flags.
func runRoot(cmd *cobra.Command) error {
	switch {
	case viper.GetBool("list_modules"):
		return runListModules()
	case viper.GetString("new_module") != "":
		return runNewModule(viper.GetString("new_module"))
	case viper.GetString("add_module") != "":
		return runAddModule(viper.GetString("add_module"))
	case viper.GetString("module") != "":
		return runAttack(cmd.Context())
	case attackRequested(cmd):
		return app.Invalid("module", "is required (use -m)")
	}
	return cmd.Help()
}

// attackRequested reports whether any attack parameter was given without a
// module to run it with.
func attackRequested(cmd *cobra.Command) bool {
	if viper.GetString("username") != "" || viper.GetString("wordlist") != "" {
		return true
	}
	for _, name := range []string{"address", "port", "url", "delay", "max-errors", "skip-blank", "tui"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			return true
		}
	}
	return false
}

func init() {
	// Persistent flags (available to all subcommands).
	pf := rootCmd.PersistentFlags()
	pf.String("workspace", "./work", "Path to workspace root")
	pf.StringSlice("modules", nil, "Additional module roots, scanned after <workspace>/modules")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.String("log-format", "text", "Log format (text|json)")
	pf.String("log-file", "", "Write logs to this file (rotated) instead of stderr")
	pf.String("config", "", "YAML config file")
	pf.String("env-file", ".env", "File of BRUTE_* variables loaded before flags are read")

	// Run flags.
	f := rootCmd.Flags()
	f.Bool("list_modules", false, "List available modules grouped by category")
	f.String("new_module", "", "Write a module stub for <category>/<name> into the current directory")
	f.String("add_module", "", "Register a module manifest and copy it into the workspace")
	f.StringP("module", "m", "", "Module to run")
	f.StringP("username", "u", "", "Username or identifier paired with every guess")
	f.StringP("wordlist", "w", "", "Wordlist file or directory of wordlists")
	f.StringP("address", "a", "", "Target address")
	f.IntP("port", "p", 0, "Target port (default: module default)")
	f.IntP("delay", "d", 5, "Seconds to wait between attempts")
	f.String("url", "", "Target URL for web modules")
	f.Int("max-errors", engine.DefaultMaxConsecutiveErrors, "Consecutive attempt errors before aborting (negative disables)")
	f.Bool("skip-blank", false, "Skip blank wordlist lines")
	f.BoolP("verbose", "v", false, "Print failed attempts too")
	f.Bool("tui", false, "Show a live terminal view of the run")

	// Bind flags to Viper.
	for key, name := range map[string]string{
		"workspace":  "workspace",
		"modules":    "modules",
		"log_level":  "log-level",
		"log_format": "log-format",
		"log_file":   "log-file",
		"config":     "config",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(name))
	}
	for key, name := range map[string]string{
		"list_modules": "list_modules",
		"new_module":   "new_module",
		"add_module":   "add_module",
		"module":       "module",
		"username":     "username",
		"wordlist":     "wordlist",
		"address":      "address",
		"port":         "port",
		"delay":        "delay",
		"url":          "url",
		"max_errors":   "max-errors",
		"skip_blank":   "skip-blank",
		"verbose":      "verbose",
		"tui":          "tui",
	} {
		_ = viper.BindPFlag(key, f.Lookup(name))
	}

	// Env support: BRUTE_WORKSPACE, BRUTE_DELAY, etc.
	viper.SetEnvPrefix("BRUTE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(campaignCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := app.LoadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	path := viper.GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return app.Invalid("config", "%v", err)
	}
	return nil
}

// session is what every command needs once flags are parsed.
type session struct {
	appCtx app.Context
	ws     workspace.Handle
	log    *logrus.Logger
	reg    *modules.Registry
	closer io.Closer
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// newSession loads configuration, prepares the workspace and logger, and
// discovers modules from every root.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := app.LoadConfigFromViper()
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Ensure(cfg.Workspace)
	if err != nil {
		return nil, err
	}

	// The live view owns the terminal; logs go to the workspace instead.
	if viper.GetBool("tui") {
		if cfg.Log.File == "" {
			cfg.Log.File = ws.LogPath()
		}
		cfg.Log.FileOnly = true
	}
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	cats := make([]modules.Category, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		cats = append(cats, modules.Category(c))
	}
	reg := modules.NewRegistry(modules.WithLogger(log), modules.WithCategories(cats...))
	roots := append([]string{ws.ModulesDir()}, cfg.ModulePaths...)
	diags := reg.Discover(execmod.Load, roots...)
	log.WithFields(logrus.Fields{"modules": reg.Len(), "skipped": len(diags)}).Debug("module discovery finished")

	return &session{
		appCtx: app.Context{
			Ctx:       ctx,
			Config:    cfg,
			Workspace: ws,
			Logger:    log,
			Now:       time.Now(),
		},
		ws:     ws,
		log:    log,
		reg:    reg,
		closer: closer,
	}, nil
}

// `version` subcommand.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

// Execute runs the CLI and exits non-zero on any fatal error, including an
// interrupted run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			pterm.Warning.Println("interrupted")
		} else {
			pterm.Error.Println(err)
		}
		os.Exit(1)
	}
}
