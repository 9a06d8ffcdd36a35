// Package logger builds the process logrus logger from app.LogConfig.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tldr-it-stepankutaj/brute/internal/app"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New returns a configured logger. The returned closer releases the log
// file, if any.
func New(cfg app.LogConfig) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, app.Invalid("log-level", "%v", err)
		}
		level = parsed
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return nil, nil, app.Invalid("log-format", "unsupported format %q", cfg.Format)
	}

	if cfg.File == "" {
		l.SetOutput(os.Stderr)
		return l, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSize, 50),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAge, 30),
		Compress:   cfg.Compress,
	}
	if level >= logrus.DebugLevel && !cfg.FileOnly {
		l.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		l.SetOutput(rotator)
	}
	return l, rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
