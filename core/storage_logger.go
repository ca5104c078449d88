package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// sessionLoggerKey is the context key for storing a per-run logger.
type sessionLoggerKey struct{}

// ContextWithSessionLogger returns a new context carrying the logger.
func ContextWithSessionLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, sessionLoggerKey{}, logger)
}

// SessionLoggerFromContext extracts the logger from the context, or nil.
func SessionLoggerFromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(sessionLoggerKey{}).(*Logger); ok {
		return l
	}
	return nil
}

// RunMetadata is the first JSON line in each run log file.
type RunMetadata struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode,omitempty"`
	StartedAt string `json:"started_at"`
}

// LogEntry is a single JSON log line written after the metadata line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// LogWriter abstracts the destination for structured log entries.
// Implementations include FileLogWriter and controlplane.WSLogWriter.
type LogWriter interface {
	Write(level, msg string, attrs map[string]interface{})
	Close()
}

// FileLogWriter writes structured log lines to a per-run .jsonl file.
type FileLogWriter struct {
	mu     sync.Mutex
	file   *os.File
	logDir string
	runID  string
}

// NewFileLogWriter creates the log directory and run log file, writes the
// metadata line, and creates an .active marker file.
func NewFileLogWriter(logDir, runID, mode string) (*FileLogWriter, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage logger: mkdir %q: %w", logDir, err)
	}

	filePath := filepath.Join(logDir, runID+".jsonl")
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("storage logger: create %q: %w", filePath, err)
	}

	meta := RunMetadata{
		RunID:     runID,
		Mode:      mode,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := sonic.Marshal(meta)
	f.Write(append(data, '\n'))

	activePath := filepath.Join(logDir, runID+".active")
	if af, err := os.Create(activePath); err == nil {
		af.Close()
	}

	return &FileLogWriter{
		file:   f,
		logDir: logDir,
		runID:  runID,
	}, nil
}

// Write appends a structured log line to the run file.
func (w *FileLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     stringifyErrors(attrs),
	}
	data, err := sonic.Marshal(entry)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Write(append(data, '\n'))
	}
}

// Close closes the log file, then removes the .active marker.
func (w *FileLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	os.Remove(filepath.Join(w.logDir, w.runID+".active"))
}

// errors marshal to {} otherwise.
func stringifyErrors(attrs map[string]interface{}) map[string]interface{} {
	if len(attrs) == 0 {
		return attrs
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}

// NewTeeLogger creates a Logger that sends every line to the base logger (when
// non-nil) and to writer. Child loggers created via With inherit this.
func NewTeeLogger(baseLogger *Logger, writer LogWriter) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		if baseLogger != nil && baseLogger.handlerFunc != nil {
			baseLogger.handlerFunc(level, msg, attrs)
		}
		writer.Write(level, msg, attrs)
	}
	return NewLogger(handler)
}
