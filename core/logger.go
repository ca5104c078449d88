package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	loggerMu       sync.RWMutex
	loggerInstance = NewDevelopmentLogger() // default to development logger
)

// SetLogger replaces the global logger instance.
func SetLogger(logger *Logger) {
	if logger == nil {
		return
	}
	loggerMu.Lock()
	loggerInstance = logger
	loggerMu.Unlock()
}

// GetLogger retrieves the global logger instance.
func GetLogger() *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return loggerInstance
}

// LogHandlerFunc receives every log line after attribute merging.
type LogHandlerFunc func(level string, msg string, attrs map[string]interface{})

type Logger struct {
	handlerFunc LogHandlerFunc
	attrs       map[string]interface{}
}

func NewLogger(handler LogHandlerFunc) *Logger {
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}

// NewDevelopmentLogger creates a logger with pretty console output on stdout.
func NewDevelopmentLogger() *Logger {
	return NewWriterLogger(os.Stdout)
}

// NewWriterLogger writes human-readable lines to w. FATAL exits the process and
// PANIC panics after the line is written.
func NewWriterLogger(w io.Writer) *Logger {
	var mu sync.Mutex
	handler := func(level string, msg string, attrs map[string]interface{}) {
		line := formatLine(time.Now(), level, msg, attrs)
		mu.Lock()
		fmt.Fprint(w, line)
		mu.Unlock()
		switch level {
		case "FATAL":
			os.Exit(1)
		case "PANIC":
			panic(msg)
		}
	}
	return NewLogger(handler)
}

// NewDiscardLogger drops everything. The TUI installs it when no log file is
// configured so console output never lands on the alternate screen.
func NewDiscardLogger() *Logger {
	return NewLogger(func(string, string, map[string]interface{}) {})
}

func formatLine(ts time.Time, level, msg string, attrs map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(ts.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(msg)
	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, attrs[k])
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) log(level string, msg string, args ...interface{}) {
	if l == nil || l.handlerFunc == nil {
		return
	}
	if len(args) > 0 {
		// slog-style key-value pairs are merged into the attributes.
		if isKeyValuePairs(args) {
			attrs := make(map[string]interface{}, len(l.attrs)+len(args)/2)
			for k, v := range l.attrs {
				attrs[k] = v
			}
			for i := 0; i < len(args)-1; i += 2 {
				key, _ := args[i].(string)
				attrs[key] = args[i+1]
			}
			l.handlerFunc(level, msg, attrs)
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	l.handlerFunc(level, msg, l.attrs)
}

// isKeyValuePairs returns true if args look like slog-style key-value pairs:
// even count and every key (even index) is a string.
func isKeyValuePairs(args []interface{}) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.log("DEBUG", format, args...) }

func (l *Logger) Info(msg string, args ...interface{}) { l.log("INFO", msg, args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.log("INFO", format, args...) }

func (l *Logger) Warn(msg string, args ...interface{}) { l.log("WARN", msg, args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.log("WARN", format, args...) }

func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.log("ERROR", format, args...) }

func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args...) }

func (l *Logger) Fatalf(format string, args ...interface{}) { l.log("FATAL", format, args...) }

// With returns a child logger carrying the merged attributes.
func (l *Logger) With(attrs map[string]interface{}) *Logger {
	if l == nil {
		return GetLogger().With(attrs)
	}
	combinedAttrs := make(map[string]interface{}, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combinedAttrs[k] = v
	}
	for k, v := range attrs {
		combinedAttrs[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combinedAttrs,
	}
}

// Sync is a no-op for fmt-based logger
func (l *Logger) Sync() error {
	return nil
}
