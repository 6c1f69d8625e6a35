package applog

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// GetRecent returns the last n entries in insertion order, fewer if the
// buffer is shorter. n <= 0 means DefaultRecentCount.
func (l *Logger) GetRecent(n int) []Entry {
	if n <= 0 {
		n = DefaultRecentCount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.tail(n)
}

// Filter selects entries for ExportLogs. Zero fields match everything.
type Filter struct {
	Levels     []Level
	Categories []Category
	Since      time.Time
	Keyword    string
	// Limit keeps only the most recent matches.
	Limit int
}

func (f Filter) match(e Entry) bool {
	if len(f.Levels) > 0 && !slices.Contains(f.Levels, e.Level) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, e.Category) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Keyword)) {
		return false
	}
	return true
}

// GetLogs returns the buffered entries matching f.
func (l *Logger) GetLogs(f Filter) []Entry {
	l.mu.Lock()
	all := l.buf.all()
	l.mu.Unlock()

	out := all[:0]
	for _, e := range all {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

type exportDocument struct {
	SessionID  string      `json:"sessionId"`
	ExportTime int64       `json:"exportTime"`
	TotalLogs  int         `json:"totalLogs"`
	Logs       []entryJSON `json:"logs"`
}

func (l *Logger) export(entries []Entry) ([]byte, error) {
	doc := exportDocument{
		SessionID:  l.sessionID,
		ExportTime: l.now().UnixMilli(),
		TotalLogs:  len(entries),
		Logs:       make([]entryJSON, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Logs = append(doc.Logs, e.wire(true))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportRecent serializes the last n entries with human-readable timestamps.
func (l *Logger) ExportRecent(n int) ([]byte, error) {
	return l.export(l.GetRecent(n))
}

// ExportLogs serializes the entries matching f.
func (l *Logger) ExportLogs(f Filter) ([]byte, error) {
	return l.export(l.GetLogs(f))
}

// LogContext is an entry with its neighbours in buffer order.
type LogContext struct {
	Target      Entry   `json:"targetLog"`
	Entries     []Entry `json:"contextLogs"`
	TargetIndex int     `json:"targetIndex"`
}

// GetLogContext returns the entry with id plus up to window entries on each
// side. It reports false when the id is unknown or has been evicted. A
// negative window means DefaultContextWindow.
func (l *Logger) GetLogContext(id string, window int) (LogContext, bool) {
	if window < 0 {
		window = DefaultContextWindow
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.buf.indexOf(id)
	if idx < 0 {
		return LogContext{}, false
	}
	start := max(0, idx-window)
	return LogContext{
		Target:      l.buf.at(idx),
		Entries:     l.buf.slice(start, idx+window+1),
		TargetIndex: idx - start,
	}, true
}

// Stats summarizes the current buffer. Evicted entries are not counted.
type Stats struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"byLevel"`
	ByCategory map[string]int `json:"byCategory"`
	SessionID  string         `json:"sessionId"`
	StartTime  time.Time      `json:"startTime"`
	Duration   time.Duration  `json:"duration"`
}

// GetStats counts buffered entries by level and category. Every known level
// and category is present, possibly with zero.
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	all := l.buf.all()
	l.mu.Unlock()

	s := Stats{
		Total:      len(all),
		ByLevel:    make(map[string]int, len(levelNames)),
		ByCategory: make(map[string]int),
		SessionID:  l.sessionID,
		StartTime:  l.startTime,
		Duration:   l.now().Sub(l.startTime),
	}
	for _, lvl := range Levels() {
		s.ByLevel[lvl.String()] = 0
	}
	for _, c := range AllCategories() {
		s.ByCategory[string(c)] = 0
	}
	for _, e := range all {
		s.ByLevel[e.Level.String()]++
		s.ByCategory[string(e.Category)]++
	}
	return s
}

// Len returns the number of buffered entries.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.len()
}

// Clear empties the buffer.
func (l *Logger) Clear() {
	l.mu.Lock()
	l.buf.reset()
	l.mu.Unlock()
	l.metrics.SetBufferSize(0)
}
