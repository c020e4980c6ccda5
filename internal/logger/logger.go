package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	return slog.New(handler)
}

func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// Level reports the active level name.
func Level() string {
	return strings.ToLower(levelVar.Level().String())
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Entry is a component-scoped logger. It resolves the base logger on every
// call so SetOutput/SetLevel apply to entries created earlier.
type Entry struct {
	component string
	attrs     []any
}

// With returns an entry tagged with component=name.
func With(component string) *Entry {
	return &Entry{component: component}
}

// WithField returns a copy of e carrying one more key/value pair.
func (e *Entry) WithField(key string, value any) *Entry {
	if e == nil {
		return With("").WithField(key, value)
	}
	attrs := make([]any, 0, len(e.attrs)+2)
	attrs = append(attrs, e.attrs...)
	attrs = append(attrs, key, value)
	return &Entry{component: e.component, attrs: attrs}
}

func (e *Entry) logger() *slog.Logger {
	l := activeLogger()
	if e == nil {
		return l
	}
	if e.component != "" {
		l = l.With("component", e.component)
	}
	if len(e.attrs) > 0 {
		l = l.With(e.attrs...)
	}
	return l
}

func (e *Entry) Debugf(format string, v ...any) {
	e.logger().Debug(fmt.Sprintf(format, v...))
}

func (e *Entry) Infof(format string, v ...any) {
	e.logger().Info(fmt.Sprintf(format, v...))
}

func (e *Entry) Warnf(format string, v ...any) {
	e.logger().Warn(fmt.Sprintf(format, v...))
}

func (e *Entry) Errorf(format string, v ...any) {
	e.logger().Error(fmt.Sprintf(format, v...))
}
