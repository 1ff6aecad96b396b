// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the levelled logger shared by the router packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is a logging threshold. Higher values are more verbose.
type LogLevel int32

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

var levels = [...]struct {
	name string
	zl   zerolog.Level
}{
	LogLevelError: {"error", zerolog.ErrorLevel},
	LogLevelWarn:  {"warn", zerolog.WarnLevel},
	LogLevelInfo:  {"info", zerolog.InfoLevel},
	LogLevelDebug: {"debug", zerolog.DebugLevel},
	LogLevelTrace: {"trace", zerolog.TraceLevel},
}

func (l LogLevel) valid() bool { return l >= 0 && int(l) < len(levels) }

func (l LogLevel) String() string {
	if !l.valid() {
		return "unknown"
	}
	return levels[l].name
}

// ParseLevel parses a case-insensitive level name. The empty string is info.
func ParseLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return LogLevelInfo, nil
	case "warning":
		return LogLevelWarn, nil
	}
	for i, lv := range levels {
		if lv.name == s {
			return LogLevel(i), nil
		}
	}
	return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Logger writes printf-style entries through zerolog. Children created with
// With share the level of their parent, so SetLevel on any of them affects
// the whole family.
type Logger struct {
	zl    zerolog.Logger
	level *atomic.Int32
}

// NewLogger returns a Logger writing JSON lines to stderr.
func NewLogger(level LogLevel) *Logger {
	return newLogger(os.Stderr, level)
}

// NewLoggerWithWriter returns a Logger writing JSON lines to w.
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	return newLogger(w, level)
}

// NewConsoleLogger returns a Logger writing human-readable lines to w.
func NewConsoleLogger(w io.Writer, level LogLevel) *Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level)
}

func newLogger(w io.Writer, level LogLevel) *Logger {
	l := &Logger{
		zl:    zerolog.New(w).With().Timestamp().Str("component", "wamprouter").Logger(),
		level: new(atomic.Int32),
	}
	l.SetLevel(level)
	return l
}

// With returns a child logger adding key=value to every entry.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger(), level: l.level}
}

func (l *Logger) SetLevel(level LogLevel) {
	if !level.valid() {
		level = LogLevelTrace
	}
	l.level.Store(int32(level))
}

func (l *Logger) GetLevel() LogLevel { return LogLevel(l.level.Load()) }

// IsEnabled reports whether entries at level are written.
func (l *Logger) IsEnabled(level LogLevel) bool { return level <= l.GetLevel() }

func (l *Logger) logf(level LogLevel, format string, args []interface{}) {
	if l.IsEnabled(level) {
		l.zl.WithLevel(levels[level].zl).Msgf(format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) { l.logf(LogLevelError, format, args) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logf(LogLevelWarn, format, args) }
func (l *Logger) Info(format string, args ...interface{})  { l.logf(LogLevelInfo, format, args) }
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(LogLevelDebug, format, args) }
func (l *Logger) Trace(format string, args ...interface{}) { l.logf(LogLevelTrace, format, args) }

// Package loggers
var (
	// DevNullLogger discards everything. Packages use it when no logger is
	// given.
	DevNullLogger = NewLoggerWithWriter(io.Discard, LogLevelError)

	DefaultLogger = NewLogger(LogLevelInfo)
	ErrorLogger   = NewLogger(LogLevelError)

	// DebugLogger writes human-readable entries to stderr.
	DebugLogger = NewConsoleLogger(os.Stderr, LogLevelDebug)
)
