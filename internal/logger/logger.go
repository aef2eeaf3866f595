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
	logger *slog.Logger
	level  = new(slog.LevelVar)
	mu     sync.Mutex
)

// Init installs the global structured logger writing text lines to w.
// A nil w writes to stderr so command output on stdout stays clean.
func Init(levelName string, w io.Writer) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	lvl, err := ParseLevel(levelName)
	level.Set(lvl)

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using INFO", "level", levelName)
	}
	return logger
}

// L returns the global logger, initializing it at INFO if needed
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return Init("info", nil)
	}
	return l
}

// SetLevel changes the minimum level of the global logger
func SetLevel(lvl slog.Level) {
	level.Set(lvl)
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", name)
	}
}

// Info is a shorthand for L().Info
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Error is a shorthand for L().Error
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// Debug is a shorthand for L().Debug
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Warn is a shorthand for L().Warn
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Fatal logs at ERROR and exits
func Fatal(msg string, args ...any) {
	L().Error(msg, args...)
	os.Exit(1)
}
