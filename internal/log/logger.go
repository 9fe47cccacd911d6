// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel converts a case-insensitive level name to a LogLevel. It
// returns LevelInfo and false for an unknown name.
func ParseLevel(name string) (LogLevel, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "WARNING" {
		name = "WARN"
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i), true
		}
	}
	return LevelInfo, false
}

// --- Global Logger State ---

var currentLevel atomic.Uint32

// sink holds the *stdlog.Logger all messages go through. It is swapped
// atomically so tests can capture output without racing the control loop.
var sink atomic.Pointer[stdlog.Logger]

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all log output. Date and time with microseconds are
// always included.
func SetOutput(w io.Writer) {
	sink.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

// SetLevel sets the global level; messages below it are dropped.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel reports the global level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func emit(level LogLevel, msg string) {
	// Keep the level column aligned: DEBUG/ERROR/FATAL are one char wider.
	pad := " "
	if len(level.String()) == 4 {
		pad = "  "
	}
	sink.Load().Printf("[%s]%s%s", level, pad, msg)
}

func logf(level LogLevel, format string, v []any) {
	if shouldLog(level) {
		emit(level, fmt.Sprintf(format, v...))
	}
}

// --- Public Logging Functions ---

func Debugf(format string, v ...any) { logf(LevelDebug, format, v) }
func Infof(format string, v ...any)  { logf(LevelInfo, format, v) }
func Warnf(format string, v ...any)  { logf(LevelWarn, format, v) }
func Errorf(format string, v ...any) { logf(LevelError, format, v) }

// Fatalf logs regardless of the level and exits with status 1.
func Fatalf(format string, v ...any) {
	emit(LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Component is a logger that prefixes every message with a component name,
// e.g. "Scheduler: started". The zero value logs without a prefix.
type Component struct {
	name string
}

// For returns a Component logger for the named subsystem.
func For(name string) Component {
	return Component{name: name}
}

func (c Component) prefix(format string) string {
	if c.name == "" {
		return format
	}
	return c.name + ": " + format
}

func (c Component) Debugf(format string, v ...any) { logf(LevelDebug, c.prefix(format), v) }
func (c Component) Infof(format string, v ...any)  { logf(LevelInfo, c.prefix(format), v) }
func (c Component) Warnf(format string, v ...any)  { logf(LevelWarn, c.prefix(format), v) }
func (c Component) Errorf(format string, v ...any) { logf(LevelError, c.prefix(format), v) }

// Enabled reports whether messages at level are currently logged.
func (c Component) Enabled(level LogLevel) bool { return shouldLog(level) }
