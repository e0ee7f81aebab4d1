// Package logging provides the zerolog-backed logger that is threaded
// explicitly through tasks and schedulers. There is no package-global
// logger; every component receives its Logger as a parameter.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level is the severity of a log message.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// ParseLevel maps a level name, case-insensitively, to a Level, defaulting
// to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the observational logging collaborator. All methods accept an
// already-formatted message and never return an error; logging failures do
// not affect task results.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Log(level Level, msg string)
	Level() Level
	SetLevel(level Level)
}

// zl is the zerolog-backed Logger implementation. SetLevel replaces the
// wrapped logger, so the value is shared behind a mutex.
type zl struct {
	mu    sync.RWMutex
	log   zerolog.Logger
	level Level
}

// Options configures a new Logger.
type Options struct {
	// Level is the minimum severity that is emitted. Default: info.
	Level Level
	// Console switches from JSON lines to human-readable console output.
	Console bool
	// Output is the destination writer. Default: os.Stderr.
	Output io.Writer
}

// New builds a zerolog-backed Logger.
func New(opts Options) Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w}
	}
	base := zerolog.New(w).With().Timestamp().Logger().Level(toZerolog(opts.Level))
	return &zl{log: base, level: opts.Level}
}

// Nop returns a Logger that discards everything. Used by tests.
func Nop() Logger {
	return &zl{log: zerolog.Nop(), level: LevelError}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *zl) Debug(msg string) { z.Log(LevelDebug, msg) }
func (z *zl) Info(msg string)  { z.Log(LevelInfo, msg) }
func (z *zl) Warn(msg string)  { z.Log(LevelWarn, msg) }
func (z *zl) Error(msg string) { z.Log(LevelError, msg) }

func (z *zl) Log(level Level, msg string) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	switch level {
	case LevelDebug:
		z.log.Debug().Msg(msg)
	case LevelWarn:
		z.log.Warn().Msg(msg)
	case LevelError:
		z.log.Error().Msg(msg)
	default:
		z.log.Info().Msg(msg)
	}
}

func (z *zl) Level() Level {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.level
}

func (z *zl) SetLevel(level Level) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.level = level
	z.log = z.log.Level(toZerolog(level))
}
