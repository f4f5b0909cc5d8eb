// Package logging provides leveled, component-scoped console output for
// steering runs. The controller logs under its own name and each agent
// under "<controller>.<agent>", so interleaved output from concurrent
// agents stays attributable.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a config string into a Level. Matching is
// case-insensitive; the empty string parses to LevelInfo.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// Logger writes log lines in the form
//
//	LEVEL TIMESTAMP [component] message key=value ...
//
// Child loggers produced by WithComponent share the parent's sink and
// level so concurrent agents never interleave partial lines.
type Logger struct {
	state     *loggerState
	component string
}

// loggerState is shared between a logger and all its children.
type loggerState struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// New creates a Logger writing to stdout at LevelInfo.
func New() *Logger {
	return &Logger{
		state: &loggerState{
			output:   os.Stdout,
			minLevel: LevelInfo,
		},
	}
}

// WithComponent returns a child logger scoped to the given component name.
// The child shares the parent's output and level.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		state:     l.state,
		component: component,
	}
}

// Component returns the component name this logger is scoped to.
func (l *Logger) Component() string {
	return l.component
}

// SetLevel sets the minimum log level for this logger and all loggers
// sharing its sink.
func (l *Logger) SetLevel(level Level) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.minLevel = level
}

// SetOutput sets the output writer (default: stdout) for this logger and
// all loggers sharing its sink.
func (l *Logger) SetOutput(w io.Writer) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if levelPriority[level] < levelPriority[l.state.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.state.output.Write([]byte(line))
}
