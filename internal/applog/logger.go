// Package applog implements the bounded structured event logger.
//
// A Logger keeps the most recent entries in a FIFO-evicting ring, filters
// calls by minimum level and enabled category, captures the calling frame,
// mirrors every admitted entry to a diagnostics logger.Logger and schedules
// a trailing-debounced upload when a severe entry is logged.
//
// Category loggers returned by (*Logger).Category are the intended API for
// application code:
//
//	pay := log.Category(applog.CategoryPay)
//	pay.Error("payment failed", map[string]any{"orderId": id})
package applog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
)

// PageContext describes the page that is current when an entry is logged.
type PageContext struct {
	Route   string
	Options map[string]string
}

// PageContextProvider reports the current page, if any.
type PageContextProvider interface {
	CurrentPage() (PageContext, bool)
}

// Observer is notified synchronously after an entry is admitted.
// Implementations must not block.
type Observer interface {
	ObserveEntry(Entry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Entry)

func (f ObserverFunc) ObserveEntry(e Entry) { f(e) }

// Logger is the bounded structured event logger. It is safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	buf       *ring
	config    Config
	enabled   map[Category]struct{}
	sessionID string
	userID    *string
	startTime time.Time
	nextSeq   uint64

	console   logger.Logger
	kv        storage.KV
	pages     PageContextProvider
	observers []Observer
	metrics   *metrics.AppLogMetrics
	now       func() time.Time

	uploader    Uploader
	uploadTimer *time.Timer
	uploadGen   uint64 // identifies uploadTimer
	uploadedSeq uint64
	uploadWG    sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxLogs sets the buffer capacity.
func WithMaxLogs(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.buf = newRing(n)
		}
	}
}

// WithConfig replaces the default admission and upload configuration.
func WithConfig(cfg Config) Option {
	return func(l *Logger) {
		if cfg.UploadDebounce <= 0 {
			cfg.UploadDebounce = DefaultUploadDebounce
		}
		l.config = cfg.clone()
	}
}

// WithConsole sets the diagnostics sink admitted entries are mirrored to.
func WithConsole(console logger.Logger) Option {
	return func(l *Logger) { l.console = console }
}

// WithUploader sets the remote upload collaborator.
func WithUploader(u Uploader) Option {
	return func(l *Logger) { l.uploader = u }
}

// WithPageContext sets the provider for route context.
func WithPageContext(p PageContextProvider) Option {
	return func(l *Logger) { l.pages = p }
}

// WithPersistence restores the user id from kv and persists later changes.
func WithPersistence(kv storage.KV) Option {
	return func(l *Logger) { l.kv = kv }
}

// WithObserver adds an entry observer.
func WithObserver(o Observer) Option {
	return func(l *Logger) { l.observers = append(l.observers, o) }
}

// WithMetrics attaches Prometheus recorders.
func WithMetrics(m *metrics.AppLogMetrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New creates a Logger.
func New(opts ...Option) *Logger {
	l := &Logger{
		buf:    newRing(DefaultMaxLogs),
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.console == nil {
		l.console = logger.NewDiscardLogger()
	}
	l.enabled = categorySet(l.config.EnabledCategories)
	l.startTime = l.now()
	l.sessionID = newSessionID(l.startTime)
	l.ctx, l.cancel = context.WithCancel(context.Background())

	if l.kv != nil {
		if id := storage.GetString(l.kv, storage.KeyUserID); id != "" {
			l.userID = &id
		}
	}
	return l
}

func newSessionID(t time.Time) string {
	return fmt.Sprintf("session_%d_%s", t.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:7])
}

// AddObserver registers an observer after construction.
func (l *Logger) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Log admits and records an entry. It reports false, with no side effects
// beyond metrics, when the level or category is filtered out.
func (l *Logger) Log(level Level, category Category, message string, data any, ctx map[string]any) (Entry, bool) {
	l.mu.Lock()
	if level < l.config.MinLevel {
		l.mu.Unlock()
		l.metrics.RecordFiltered("level")
		return Entry{}, false
	}
	if _, ok := l.enabled[category]; !ok {
		l.mu.Unlock()
		l.metrics.RecordFiltered("category")
		return Entry{}, false
	}
	sessionID, userID := l.sessionID, l.userID
	l.mu.Unlock()

	now := l.now()
	snap, err := snapshot(data)
	if err != nil {
		l.console.Warn("log payload is not serializable, dropping data",
			logger.String("category", string(category)),
			logger.Error(err))
		snap = nil
	}

	entry := Entry{
		ID:           "log_" + uuid.NewString(),
		Timestamp:    now,
		SessionID:    sessionID,
		UserID:       userID,
		Level:        level,
		Category:     category,
		Message:      message,
		Data:         snap,
		Context:      l.entryContext(ctx),
		StackTrace:   captureFrame(),
		RelativeTime: now.Sub(l.startTime),
	}

	l.mu.Lock()
	l.nextSeq++
	entry.seq = l.nextSeq
	evicted := l.buf.push(entry)
	size := l.buf.len()
	if level >= l.config.UploadTriggerLevel {
		l.scheduleUploadLocked()
	}
	observers := l.observers
	l.mu.Unlock()

	if evicted {
		l.metrics.RecordEvicted()
	}
	l.metrics.RecordAdmitted(level.String(), string(category), size)
	l.mirror(entry)
	for _, o := range observers {
		l.notify(o, entry)
	}
	return entry, true
}

func (l *Logger) notify(o Observer, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.console.Error("log observer panicked", logger.Any("panic", r), logger.String("entry_id", entry.ID))
		}
	}()
	o.ObserveEntry(entry)
}

func (l *Logger) entryContext(caller map[string]any) map[string]any {
	ctx := make(map[string]any, len(caller)+2)
	if l.pages != nil {
		if page, ok := l.pages.CurrentPage(); ok {
			ctx["route"] = page.Route
			if len(page.Options) > 0 {
				opts := make(map[string]any, len(page.Options))
				for k, v := range page.Options {
					opts[k] = v
				}
				ctx["options"] = opts
			}
		}
	}
	for k, v := range caller {
		ctx[k] = v
	}
	return ctx
}

// mirror writes the entry to the diagnostics sink at the matching level.
func (l *Logger) mirror(e Entry) {
	location := "unknown"
	if e.StackTrace != nil {
		location = fmt.Sprintf("%s:%d", e.StackTrace.File, e.StackTrace.Line)
	} else if route, ok := e.Context["route"].(string); ok && route != "" {
		location = route
	}

	fields := []logger.Field{
		logger.String("category", string(e.Category)),
		logger.String("location", location),
		logger.String("entry_id", e.ID),
	}
	if e.Data != nil {
		fields = append(fields, logger.Any("data", e.Data))
	}

	msg := "[" + string(e.Category) + "] " + e.Message
	switch e.Level {
	case LevelDebug:
		l.console.Debug(msg, fields...)
	case LevelInfo:
		l.console.Info(msg, fields...)
	case LevelWarn:
		l.console.Warn(msg, fields...)
	case LevelFatal:
		l.console.Error(msg, append(fields, logger.Bool("fatal", true))...)
	default:
		l.console.Error(msg, fields...)
	}
}

// Config returns a copy of the current configuration.
func (l *Logger) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.clone()
}

// UpdateConfig applies a partial configuration change.
func (l *Logger) UpdateConfig(p ConfigPatch) {
	l.mu.Lock()
	l.config.apply(p)
	l.enabled = categorySet(l.config.EnabledCategories)
	l.mu.Unlock()
	l.console.Info("log config updated")
}

// SetUser sets the user id stamped on later entries and persists it. An
// empty id clears it.
func (l *Logger) SetUser(userID string) {
	l.mu.Lock()
	if userID == "" {
		l.userID = nil
	} else {
		l.userID = &userID
	}
	kv := l.kv
	l.mu.Unlock()

	if kv == nil {
		return
	}
	var err error
	if userID == "" {
		err = kv.Remove(storage.KeyUserID)
	} else {
		err = kv.Set(storage.KeyUserID, userID)
	}
	if err != nil {
		l.console.Warn("failed to persist user id", logger.Error(err))
	}
}

// UserID returns the current user id, or "" when none is set.
func (l *Logger) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userID == nil {
		return ""
	}
	return *l.userID
}

// SessionID returns the id shared by every entry of this process.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// StartTime returns when the logger was created.
func (l *Logger) StartTime() time.Time {
	return l.startTime
}
