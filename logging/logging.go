// Package logging builds the zap logger shared by every blobshard component.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options is the `log` section of the configuration file.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "console" or "json".
	Format string `yaml:"format"`

	// Console enables output to stderr.
	Console bool `yaml:"console"`

	// File enables rotated output to the given path.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Format:     "console",
		Console:    true,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// New builds a logger writing to stderr, to a rotated file, or both. With neither
// enabled it returns a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var fileEncoder, consoleEncoder zapcore.Encoder
	switch opts.Format {
	case "", "console":
		consoleEncCfg := encCfg
		consoleEncCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleEncCfg)
		fileEncoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
		fileEncoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format %q", opts.Format)
	}

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level))
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(fileEncoder, writer, level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
