// Package analytics records page views and custom events in a small rolling
// local store and uploads them in batches on demand.
package analytics

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
	"github.com/Saisumanthklv/weapp-starter-template/internal/retryqueue"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
	"github.com/Saisumanthklv/weapp-starter-template/internal/transport"
)

const (
	// DefaultCapacity is how many events the local store keeps.
	DefaultCapacity = 10
	// DefaultEndpoint receives uploaded batches.
	DefaultEndpoint = "/analytics/events"

	EventPageView = "page_view"
)

// Event is one tracked event as stored locally.
type Event struct {
	Event      string         `json:"event"`
	PagePath   string         `json:"page_path,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	SessionID  string         `json:"session_id"`
	Timestamp  int64          `json:"timestamp"`
	ID         string         `json:"id"`
	StoredAt   string         `json:"stored_at"`
}

// Batch is what Flush uploads.
type Batch struct {
	SessionID string  `json:"sessionId"`
	DeviceID  string  `json:"deviceId"`
	Events    []Event `json:"events"`
}

// Tracker collects events for one session
type Tracker struct {
	kv       storage.KV
	log      applog.CategoryLogger
	capacity int
	endpoint string
	now      func() time.Time

	deviceID  string
	sessionID string
	startTime time.Time

	mu    sync.Mutex
	queue *retryqueue.Queue[Batch]
}

// Option configures a Tracker.
type Option func(*trackerOptions)

type trackerOptions struct {
	capacity  int
	endpoint  string
	sender    transport.Sender
	log       applog.CategoryLogger
	now       func() time.Time
	queueOpts []retryqueue.Option[Batch]
}

// WithCapacity sets the rolling store size.
func WithCapacity(n int) Option { return func(o *trackerOptions) { o.capacity = n } }

// WithSender enables Flush, posting batches to endpoint.
func WithSender(s transport.Sender, endpoint string) Option {
	return func(o *trackerOptions) {
		o.sender = s
		o.endpoint = endpoint
	}
}

// WithLogger sets the ANALYTICS category logger.
func WithLogger(l applog.CategoryLogger) Option { return func(o *trackerOptions) { o.log = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *trackerOptions) { o.now = now } }

// WithQueueOptions tunes the upload queue.
func WithQueueOptions(opts ...retryqueue.Option[Batch]) Option {
	return func(o *trackerOptions) { o.queueOpts = append(o.queueOpts, opts...) }
}

// WithMetrics records upload queue metrics.
func WithMetrics(m *metrics.QueueMetrics) Option {
	return WithQueueOptions(retryqueue.WithMetrics[Batch](m))
}

// New creates a tracker persisting events in kv.
func New(kv storage.KV, opts ...Option) *Tracker {
	o := trackerOptions{capacity: DefaultCapacity, endpoint: DefaultEndpoint, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}
	if o.endpoint == "" {
		o.endpoint = DefaultEndpoint
	}
	if o.log == nil {
		o.log = applog.Discard(applog.CategoryAnalytics)
	}

	t := &Tracker{
		kv:        kv,
		log:       o.log,
		capacity:  o.capacity,
		endpoint:  o.endpoint,
		now:       o.now,
		startTime: o.now(),
	}
	t.deviceID = DeviceID(kv, o.now, o.log)
	t.sessionID = t.newSessionID()

	if o.sender != nil {
		sender, endpoint := o.sender, o.endpoint
		queueOpts := append([]retryqueue.Option[Batch]{retryqueue.WithLogger[Batch](o.log)}, o.queueOpts...)
		t.queue = retryqueue.New("analytics", func(ctx context.Context, b Batch) error {
			return sender.Send(ctx, endpoint, b)
		}, queueOpts...)
	}
	return t
}

// SessionID returns the session identifier.
func (t *Tracker) SessionID() string { return t.sessionID }

// DeviceID returns the persistent device identifier.
func (t *Tracker) DeviceID() string { return t.deviceID }

// StartTime returns when the tracker was created.
func (t *Tracker) StartTime() time.Time { return t.startTime }

func (t *Tracker) newSessionID() string {
	seed := fmt.Sprintf("%s-%d-%f-%f", t.deviceID, t.now().UnixMilli(), rand.Float64(), rand.Float64())
	return "session_" + md5Hex(seed)
}

// TrackPageView records a visit to path.
func (t *Tracker) TrackPageView(path string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	e := Event{
		Event:     EventPageView,
		PagePath:  path,
		Params:    params,
		SessionID: t.sessionID,
		Timestamp: t.now().UnixMilli(),
	}
	t.log.Info("page view tracked", e)
	t.StoreEvent(e)
}

// TrackEvent records a custom event.
func (t *Tracker) TrackEvent(name string, properties map[string]any) {
	if properties == nil {
		properties = map[string]any{}
	}
	e := Event{
		Event:      name,
		Properties: properties,
		SessionID:  t.sessionID,
		Timestamp:  t.now().UnixMilli(),
	}
	t.log.Info("event tracked", e)
	t.StoreEvent(e)
}

// StoreEvent appends e to the rolling store, stamping id and stored_at and
// dropping the oldest events beyond capacity. Storage failures are logged.
func (t *Tracker) StoreEvent(e Event) {
	now := t.now()
	e.ID = fmt.Sprintf("%d_%s", now.UnixMilli(), shortID())
	e.StoredAt = now.UTC().Format("2006-01-02T15:04:05.000Z")

	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.loadLocked()
	if err != nil {
		t.log.Error("failed to store analytics event", map[string]any{"error": err.Error()})
		return
	}
	events = append(events, e)
	if len(events) > t.capacity {
		events = events[len(events)-t.capacity:]
	}
	if err := t.kv.Set(storage.KeyAnalyticsData, events); err != nil {
		t.log.Error("failed to store analytics event", map[string]any{"error": err.Error()})
		return
	}
	t.log.Debug("analytics event stored", map[string]any{"stored": len(events), "capacity": t.capacity})
}

// Stored returns the locally stored events, oldest first.
func (t *Tracker) Stored() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	events, err := t.loadLocked()
	if err != nil {
		t.log.Error("failed to read analytics events", map[string]any{"error": err.Error()})
		return []Event{}
	}
	return events
}

// ClearStored removes every stored event.
func (t *Tracker) ClearStored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.kv.Remove(storage.KeyAnalyticsData); err != nil {
		t.log.Error("failed to clear analytics events", map[string]any{"error": err.Error()})
		return
	}
	t.log.Info("stored analytics events cleared", nil)
}

func (t *Tracker) loadLocked() ([]Event, error) {
	var events []Event
	if _, err := t.kv.Get(storage.KeyAnalyticsData, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Flush queues the stored events as one batch and clears the store. It
// returns the number of events queued; zero when there is nothing to send
// or no sender is configured.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if t.queue == nil {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	events, err := t.loadLocked()
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	// Events leave the store only once the queue owns them.
	if err := t.queue.Enqueue(Batch{SessionID: t.sessionID, DeviceID: t.deviceID, Events: events}); err != nil {
		t.log.Warn("analytics batch not queued, events kept", map[string]any{"events": len(events), "error": err.Error()})
		return 0, err
	}
	if err := t.kv.Remove(storage.KeyAnalyticsData); err != nil {
		t.log.Error("failed to clear flushed analytics events", map[string]any{"error": err.Error()})
	}
	t.log.Info("analytics batch queued", map[string]any{"events": len(events)})
	return len(events), nil
}

// Wait blocks until queued batches are delivered or dropped.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.queue == nil {
		return nil
	}
	return t.queue.Wait(ctx)
}

// Close stops the upload queue.
func (t *Tracker) Close() {
	if t.queue != nil {
		t.queue.Close()
	}
}

// DeviceID returns the device id persisted in kv, creating it on first use
// from a timestamped random seed. A failed write is logged and the id is
// still returned for this session.
func DeviceID(kv storage.KV, now func() time.Time, log applog.CategoryLogger) string {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = applog.Discard(applog.CategoryAnalytics)
	}
	if id := storage.GetString(kv, storage.KeyDeviceID); id != "" {
		return id
	}
	id := md5Hex(fmt.Sprintf("%d-%s", now().UnixMilli(), shortID()))
	if err := kv.Set(storage.KeyDeviceID, id); err != nil {
		log.Warn("failed to persist device id", map[string]any{"error": err.Error()})
	}
	return id
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
