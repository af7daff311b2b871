// Package logging routes the dragonboat logger facade used by all dBench
// packages through log/slog with a tint handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Packages lists the loggers created by dBench packages
var Packages = []string{"bstore", "session", "maple", "spanner", "firestore", "measure", "bench", "cli"}

var (
	mu           sync.Mutex
	handler      slog.Handler
	defaultLevel = logger.INFO

	// the dragonboat factory can only be set once per process
	installFactory sync.Once
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// slogLogger forwards a named dragonboat logger to slog. The handler is
// looked up on every message so a later InitWriter reaches existing loggers.
type slogLogger struct {
	mu    sync.RWMutex
	pkg   string
	level logger.LogLevel
}

func (l *slogLogger) log() *slog.Logger {
	return slog.New(currentHandler()).With("pkg", l.pkg)
}

func (l *slogLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *slogLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *slogLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log().Debug(fmt.Sprintf(format, args...))
	}
}

func (l *slogLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log().Info(fmt.Sprintf(format, args...))
	}
}

func (l *slogLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log().Warn(fmt.Sprintf(format, args...))
	}
}

func (l *slogLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log().Error(fmt.Sprintf(format, args...))
	}
}

func (l *slogLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log().Error(msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	mu.Lock()
	defer mu.Unlock()
	return &slogLogger{
		pkg:   pkgName,
		level: defaultLevel,
	}
}

// currentHandler returns the handler installed by the last InitWriter call
func currentHandler() slog.Handler {
	mu.Lock()
	defer mu.Unlock()
	if handler == nil {
		handler = NewHandler(os.Stderr, slog.LevelDebug)
	}
	return handler
}

// NewHandler returns a tint handler writing to w. Colours are only used
// when w is a terminal.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// ParseLevel converts a level name into a dragonboat log level
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// Init installs the slog-backed factory and sets the level of all dBench
// loggers. It also makes the same handler the slog default.
func Init(level string) error {
	return InitWriter(os.Stderr, level)
}

// InitWriter is Init with a custom output. It may be called repeatedly,
// every call redirects all loggers to w.
func InitWriter(w io.Writer, level string) error {
	ll, err := ParseLevel(level)
	if err != nil {
		return err
	}

	mu.Lock()
	defaultLevel = ll
	handler = NewHandler(w, slog.LevelDebug)
	h := handler
	mu.Unlock()

	slog.SetDefault(slog.New(h))
	installFactory.Do(func() { logger.SetLoggerFactory(CreateLogger) })
	for _, name := range Packages {
		logger.GetLogger(name).SetLevel(ll)
	}
	return nil
}
