package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger is a named logger. The name is emitted as the "service" field of
// every line.
type Logger struct {
	name   string
	fields []field
}

type field struct {
	key   string
	value any
}

// Options configures the process wide log output.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Pretty selects zerolog's console writer instead of JSON lines.
	Pretty bool
}

// writerHolder keeps atomic.Value storing a single concrete type no matter
// which io.Writer is installed.
type writerHolder struct {
	w io.Writer
}

var (
	globalDebug  atomic.Bool
	serviceDebug sync.Map // map[string]*atomic.Bool
	loggers      sync.Map // map[string]*Logger

	outputWriter atomic.Value // writerHolder
	pretty       atomic.Bool
	minLevel     atomic.Int32

	baseMu sync.RWMutex
	base   zerolog.Logger
)

func init() {
	outputWriter.Store(writerHolder{w: os.Stderr})
	minLevel.Store(int32(zerolog.InfoLevel))
	rebuild()
}

// Configure applies level and output format. A debug level also turns on
// global debug output.
func Configure(opts Options) {
	switch strings.ToLower(strings.TrimSpace(opts.Level)) {
	case "debug":
		minLevel.Store(int32(zerolog.DebugLevel))
		SetGlobalDebug(true)
	case "warn", "warning":
		minLevel.Store(int32(zerolog.WarnLevel))
	case "error":
		minLevel.Store(int32(zerolog.ErrorLevel))
	default:
		minLevel.Store(int32(zerolog.InfoLevel))
	}
	pretty.Store(opts.Pretty)
	rebuild()
}

func rebuild() {
	w := outputWriter.Load().(writerHolder).w
	if pretty.Load() {
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: noColor}
	}
	zl := zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()

	baseMu.Lock()
	base = zl
	baseMu.Unlock()
}

func current() zerolog.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// ForService returns (and memoizes) a named logger for the given component.
func ForService(name string) *Logger {
	if name == "" {
		name = "unknown"
	}
	if l, ok := loggers.Load(name); ok {
		return l.(*Logger)
	}
	actual, _ := loggers.LoadOrStore(name, &Logger{name: name})
	return actual.(*Logger)
}

// With returns a child logger carrying an extra structured field. Child
// loggers are not memoized.
func (l *Logger) With(key string, value any) *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	return &Logger{name: l.name, fields: append(fields, field{key: key, value: value})}
}

// Name returns the service name of the logger.
func (l *Logger) Name() string {
	return l.name
}

// SetGlobalDebug enables or disables debug logging globally.
func SetGlobalDebug(enabled bool) {
	globalDebug.Store(enabled)
}

// GlobalDebug returns whether global debug logging is enabled.
func GlobalDebug() bool {
	return globalDebug.Load()
}

// EnableDebugFor enables debug logging for a single service.
func EnableDebugFor(name string) {
	if name == "" {
		return
	}
	val, _ := serviceDebug.LoadOrStore(name, &atomic.Bool{})
	val.(*atomic.Bool).Store(true)
}

// DisableDebugFor disables debug logging for a single service.
func DisableDebugFor(name string) {
	if name == "" {
		return
	}
	if val, ok := serviceDebug.Load(name); ok {
		val.(*atomic.Bool).Store(false)
	}
}

// DebugEnabledFor reports whether debug is enabled globally or for name.
func DebugEnabledFor(name string) bool {
	if globalDebug.Load() {
		return true
	}
	if val, ok := serviceDebug.Load(name); ok {
		return val.(*atomic.Bool).Load()
	}
	return false
}

// SetOutput redirects every logger, existing ones included.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	outputWriter.Store(writerHolder{w: w})
	rebuild()
}

func (l *Logger) emit(level zerolog.Level, msg string) {
	if level != zerolog.DebugLevel && level < zerolog.Level(minLevel.Load()) {
		return
	}
	zl := current()
	ev := zl.WithLevel(level)
	if ev == nil {
		return
	}
	ev = ev.Str("service", l.name)
	for _, f := range l.fields {
		ev = ev.Interface(f.key, f.value)
	}
	ev.Msg(msg)
}

// Infof logs an informational message with fmt.Sprintf semantics.
func (l *Logger) Infof(format string, args ...any) {
	l.emit(zerolog.InfoLevel, fmt.Sprintf(format, args...))
}

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.emit(zerolog.WarnLevel, fmt.Sprintf(format, args...))
}

// Errorf logs an error.
func (l *Logger) Errorf(format string, args ...any) {
	l.emit(zerolog.ErrorLevel, fmt.Sprintf(format, args...))
}

// Debugf logs only when debug is enabled globally or for this service.
func (l *Logger) Debugf(format string, args ...any) {
	if !DebugEnabledFor(l.name) {
		return
	}
	l.emit(zerolog.DebugLevel, fmt.Sprintf(format, args...))
}
