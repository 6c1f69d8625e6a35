package logger

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// NewSlogLogger creates a text logger writing to w, mainly for tests and tools.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, lvl, tz)),
		level:    lvl,
		timezone: tz,
	}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}

// Record is one message captured by a Recorder.
type Record struct {
	Level   LogLevel
	Module  string
	Message string
	Fields  map[string]any
}

// Recorder is an in-memory Logger that keeps every message. Sub-loggers
// created with Module share the parent's record list.
type Recorder struct {
	mu      *sync.Mutex
	records *[]Record
	module  string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, records: &[]Record{}}
}

func (r *Recorder) Module(name string) Logger {
	module := name
	if r.module != "" {
		module = r.module + "." + name
	}
	return &Recorder{mu: r.mu, records: r.records, module: module}
}

func (r *Recorder) Trace(msg string, fields ...Field) { r.Log(LogLevelTrace, msg, fields...) }
func (r *Recorder) Debug(msg string, fields ...Field) { r.Log(LogLevelDebug, msg, fields...) }
func (r *Recorder) Info(msg string, fields ...Field)  { r.Log(LogLevelInfo, msg, fields...) }
func (r *Recorder) Warn(msg string, fields ...Field)  { r.Log(LogLevelWarn, msg, fields...) }
func (r *Recorder) Error(msg string, fields ...Field) { r.Log(LogLevelError, msg, fields...) }

func (r *Recorder) Log(level LogLevel, msg string, fields ...Field) {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Key] = f.Value
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, Record{Level: level, Module: r.module, Message: msg, Fields: values})
}

// Records returns a copy of everything logged so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(*r.records)
}

// Count returns how many records at level contain substr in their message.
func (r *Recorder) Count(level LogLevel, substr string) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Level == level && strings.Contains(rec.Message, substr) {
			n++
		}
	}
	return n
}
