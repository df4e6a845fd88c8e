// Package logger provides the structured logger shared by all components.
// Output is JSON on stdout; when a file path is configured it is also
// written to a size-rotated log file.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias for logrus.Fields.
type Fields = logrus.Fields

// Entry is an alias for logrus.Entry, the unit handlers log through.
type Entry = logrus.Entry

// Config controls log level and optional file rotation.
type Config struct {
	Level      string // debug, info, warn, error; default info
	File       string // rotated log file path; empty = stdout only
	MaxSizeMB  int    // rotate after this size; default 100
	MaxBackups int    // rotated files to keep; default 3
	MaxAgeDays int    // days to keep rotated files; default 28
}

// Log wraps logrus.Logger.
type Log struct {
	*logrus.Logger
}

// New creates a configured logger.
func New(cfg Config) *Log {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}
	l.SetOutput(out)

	return &Log{Logger: l}
}

// WithComponent tags all entries with the originating component.
func (l *Log) WithComponent(component string) *Entry {
	return l.Logger.WithField("component", component)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
