package pkg

import (
	"io"
	"log/slog"
	"os"
	"sync"

	charm "github.com/charmbracelet/log"
)

// Component identifies a subsystem for log filtering.
type Component string

// Bluebox component identifiers.
const (
	ComponentStack    Component = "stack"
	ComponentHAL      Component = "hal"
	ComponentRelay    Component = "relay"
	ComponentDispatch Component = "dispatch"
	ComponentMirror   Component = "mirror"
	ComponentRadio    Component = "radio"
	ComponentHost     Component = "host"
	ComponentConfig   Component = "config"
	ComponentMetrics  Component = "metrics"
	ComponentNotify   Component = "notify"
	ComponentDaemon   Component = "daemon"
	ComponentCLI      Component = "cli"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText   LogFormat = iota // Text format (default)
	LogFormatJSON                    // JSON format
	LogFormatLogfmt                  // logfmt format
)

// ParseLogFormat maps a format name to a LogFormat. Unknown names select text.
func ParseLogFormat(name string) LogFormat {
	switch name {
	case "json":
		return LogFormatJSON
	case "logfmt":
		return LogFormatLogfmt
	default:
		return LogFormatText
	}
}

var (
	// DefaultLogger is the default logger used by all bluebox packages.
	DefaultLogger *slog.Logger

	// handler backs DefaultLogger when it was built by this package.
	handler *charm.Logger

	// logLevel holds the minimum log level.
	logLevel = slog.LevelWarn

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	handler = newHandler(os.Stderr, LogFormatText, logLevel)
	DefaultLogger = slog.New(handler)
}

func newHandler(w io.Writer, format LogFormat, level slog.Level) *charm.Logger {
	opts := charm.Options{
		Level:           charm.Level(level),
		ReportTimestamp: true,
	}
	switch format {
	case LogFormatJSON:
		opts.Formatter = charm.JSONFormatter
	case LogFormatLogfmt:
		opts.Formatter = charm.LogfmtFormatter
	default:
		opts.Formatter = charm.TextFormatter
	}
	return charm.NewWithOptions(w, opts)
}

// SetLogLevel sets the minimum log level for all bluebox logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel = level
	if handler != nil {
		handler.SetLevel(charm.Level(level))
	}
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel
}

// SetLogger replaces the default logger with a custom logger. Level changes
// made through SetLogLevel no longer apply to it.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
	handler = nil
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	handler = newHandler(os.Stderr, format, logLevel)
	DefaultLogger = slog.New(handler)
}

// NewLogger creates a logger writing to w in the given format at the given
// level.
func NewLogger(w io.Writer, format LogFormat, level slog.Level) *slog.Logger {
	return slog.New(newHandler(w, format, level))
}

func current() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	current().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	current().Info(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	current().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	current().Error(msg, append([]any{"component", string(component)}, args...)...)
}
