// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string
	// Console switches stdout to zerolog's human-readable writer.
	Console bool
	// File, when set, receives a JSON copy of every event with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger writing to stdout and, optionally, a rotated file.
// Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	return newWithStdout(cfg, os.Stdout)
}

func newWithStdout(cfg Config, stdout io.Writer) zerolog.Logger {
	var out io.Writer = stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"}
	}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, fileWriter(cfg))
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

func fileWriter(cfg Config) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	if lj.MaxSize <= 0 {
		lj.MaxSize = 100
	}
	return lj
}

func ParseLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
