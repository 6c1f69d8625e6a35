package applog

import (
	"encoding/json"
	"runtime"
	"strings"
	"time"
)

// Entry is one admitted log record. Entries are values; the buffer never
// hands out references to its own storage.
type Entry struct {
	ID           string
	Timestamp    time.Time
	SessionID    string
	UserID       *string
	Level        Level
	Category     Category
	Message      string
	Data         any
	Context      map[string]any
	StackTrace   *Frame
	RelativeTime time.Duration

	seq uint64
}

// Frame is a best-effort call site. Column is always zero in Go builds.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// TimestampMillis returns the wall-clock timestamp in Unix milliseconds.
func (e Entry) TimestampMillis() int64 {
	return e.Timestamp.UnixMilli()
}

// FormattedTime renders the timestamp as HH:MM:SS.mmm in local time.
func (e Entry) FormattedTime() string {
	return e.Timestamp.Local().Format("15:04:05.000")
}

type entryJSON struct {
	ID            string         `json:"id"`
	Timestamp     int64          `json:"timestamp"`
	SessionID     string         `json:"sessionId"`
	UserID        *string        `json:"userId"`
	Level         Level          `json:"level"`
	Category      Category       `json:"category"`
	Message       string         `json:"message"`
	Data          any            `json:"data"`
	Context       map[string]any `json:"context"`
	StackTrace    *Frame         `json:"stackTrace"`
	RelativeTime  int64          `json:"relativeTime"`
	FormattedTime string         `json:"formattedTime,omitempty"`
}

func (e Entry) wire(formatted bool) entryJSON {
	w := entryJSON{
		ID:           e.ID,
		Timestamp:    e.TimestampMillis(),
		SessionID:    e.SessionID,
		UserID:       e.UserID,
		Level:        e.Level,
		Category:     e.Category,
		Message:      e.Message,
		Data:         e.Data,
		Context:      e.Context,
		StackTrace:   e.StackTrace,
		RelativeTime: e.RelativeTime.Milliseconds(),
	}
	if formatted {
		w.FormattedTime = e.FormattedTime()
	}
	return w
}

// MarshalJSON encodes the entry with millisecond timestamps.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.wire(false))
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Entry{
		ID:           w.ID,
		Timestamp:    time.UnixMilli(w.Timestamp),
		SessionID:    w.SessionID,
		UserID:       w.UserID,
		Level:        w.Level,
		Category:     w.Category,
		Message:      w.Message,
		Data:         w.Data,
		Context:      w.Context,
		StackTrace:   w.StackTrace,
		RelativeTime: time.Duration(w.RelativeTime) * time.Millisecond,
	}
	return nil
}

// snapshot deep-copies data through a JSON round trip.
func snapshot(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// packagePrefix is the function-name prefix shared by everything in this package.
var packagePrefix = func() string {
	pc, _, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	name := fn.Name()
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return ""
	}
	return name[:slash+1+dot+1]
}()

const maxCallerDepth = 32

// captureFrame returns the first frame outside this package and the runtime.
func captureFrame() (frame *Frame) {
	defer func() {
		if recover() != nil {
			frame = nil
		}
	}()

	pcs := make([]uintptr, maxCallerDepth)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if f.Function != "" &&
			(packagePrefix == "" || !strings.HasPrefix(f.Function, packagePrefix)) &&
			!strings.HasPrefix(f.Function, "runtime.") {
			return &Frame{
				Function: shortFunction(f.Function),
				File:     f.File,
				Line:     f.Line,
			}
		}
		if !more {
			return nil
		}
	}
}

func shortFunction(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
