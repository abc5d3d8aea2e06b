package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Level is a logging severity.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name to a Level. Unknown names map to InfoLevel.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	}
	return InfoLevel
}

// Logger is the printf-style logger passed to every component.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)
	SetLevel(level Level)
	// Named returns a logger that prefixes messages with the component name
	// and shares the parent's output and level.
	Named(component string) Logger
}

// LogConfig selects the log destination and minimum level. Empty fields
// fall back to LOG_OUTPUT, LOG_LEVEL and LOG_FILE_PATH.
type LogConfig struct {
	Output   string // "file", "stderr" or "stdout"
	Level    string
	FilePath string
}

type standardLogger struct {
	out       *log.Logger
	level     *atomic.Int32
	component string
}

// NewLogger builds a Logger from cfg.
func NewLogger(cfg LogConfig) (Logger, error) {
	output := firstNonEmpty(cfg.Output, os.Getenv("LOG_OUTPUT"), detectEnvironment())

	var w io.Writer
	switch output {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "file":
		path := firstNonEmpty(cfg.FilePath, os.Getenv("LOG_FILE_PATH"))
		if path == "" {
			dir, err := DataDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "course.log")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
	default:
		return nil, fmt.Errorf("invalid log output: %s (expected 'file', 'stderr' or 'stdout')", output)
	}

	return newStandard(w, ParseLevel(firstNonEmpty(cfg.Level, os.Getenv("LOG_LEVEL"), "info"))), nil
}

// NewWriterLogger logs to w at the given level.
func NewWriterLogger(w io.Writer, level Level) Logger {
	return newStandard(w, level)
}

// NewNoOpLogger discards everything. Used by tests.
func NewNoOpLogger() Logger {
	return newStandard(io.Discard, FatalLevel)
}

// DataDir returns ~/.course-mcp, creating it if needed. The log file and the
// default database live there.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, ".course-mcp")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func newStandard(w io.Writer, level Level) *standardLogger {
	lv := &atomic.Int32{}
	lv.Store(int32(level))
	return &standardLogger{out: log.New(w, "", log.LstdFlags), level: lv}
}

// stdio MCP servers own stdout, so containers get stderr and local runs get
// a file.
func detectEnvironment() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "stderr"
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "stderr"
	}
	return "file"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (l *standardLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *standardLogger) Named(component string) Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &standardLogger{out: l.out, level: l.level, component: name}
}

func (l *standardLogger) Debug(format string, v ...any) { l.logAt(DebugLevel, format, v...) }
func (l *standardLogger) Info(format string, v ...any)  { l.logAt(InfoLevel, format, v...) }
func (l *standardLogger) Warn(format string, v ...any)  { l.logAt(WarnLevel, format, v...) }
func (l *standardLogger) Error(format string, v ...any) { l.logAt(ErrorLevel, format, v...) }

func (l *standardLogger) Fatal(format string, v ...any) {
	l.write(FatalLevel, format, v...)
	os.Exit(1)
}

func (l *standardLogger) logAt(level Level, format string, v ...any) {
	if Level(l.level.Load()) <= level {
		l.write(level, format, v...)
	}
}

func (l *standardLogger) write(level Level, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		l.out.Printf("[%s] %s: %s", level, l.component, msg)
		return
	}
	l.out.Printf("[%s] %s", level, msg)
}
