package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains global runtime configuration.
type Config struct {
	Workspace   string
	ModulePaths []string
	Categories  []string

	Log LogConfig

	Delay                time.Duration
	MaxConsecutiveErrors int
}

// LogConfig selects logrus level, format and output.
type LogConfig struct {
	Level      string
	Format     string // text or json
	File       string // empty logs to stderr
	MaxSize    int    // MB, for lumberjack rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	// FileOnly keeps debug output off stderr when a file is set.
	FileOnly bool
}

// ConfigurationError is a missing or invalid user input. It is always fatal.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Invalid builds a ConfigurationError.
func Invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// LoadConfigFromViper builds Config from Viper-bound flags, env and config file.
func LoadConfigFromViper() (Config, error) {
	cfg := Config{
		Workspace:   viper.GetString("workspace"),
		ModulePaths: viper.GetStringSlice("modules"),
		Categories:  viper.GetStringSlice("categories"),
		Log: LogConfig{
			Level:      viper.GetString("log_level"),
			Format:     viper.GetString("log_format"),
			File:       viper.GetString("log_file"),
			MaxSize:    viper.GetInt("log_max_size"),
			MaxBackups: viper.GetInt("log_max_backups"),
			MaxAge:     viper.GetInt("log_max_age"),
			Compress:   viper.GetBool("log_compress"),
		},
		Delay:                time.Duration(viper.GetInt("delay")) * time.Second,
		MaxConsecutiveErrors: viper.GetInt("max_errors"),
	}
	return cfg, cfg.Validate()
}

// Validate returns a *ConfigurationError if configuration is invalid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Workspace) == "" {
		return Invalid("workspace", "cannot be empty")
	}
	if c.Delay < 0 {
		return Invalid("delay", "cannot be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return Invalid("log-format", "unsupported format %q (text|json)", c.Log.Format)
	}
	return nil
}
