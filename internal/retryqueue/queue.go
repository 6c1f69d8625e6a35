// Package retryqueue provides an at-least-once delivery queue with
// exponential backoff.
//
// A Queue sends items strictly one at a time in FIFO order. A failed head
// item is retried in place after min(base*2^(r-1), max); once its retry
// count exceeds the configured maximum it is dropped and the queue moves
// on. A single drain goroutine exists while items are pending and exits
// when the queue is empty.
package retryqueue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second
)

// SendFunc delivers one payload. A nil error means delivered.
type SendFunc[T any] func(ctx context.Context, payload T) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Item is the envelope around a queued payload.
type Item[T any] struct {
	Payload    T
	RetryCount int
	CreatedAt  time.Time
}

// Queue is safe for concurrent use.
type Queue[T any] struct {
	name string
	send SendFunc[T]

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     bool
	sleep      Sleeper
	log        applog.CategoryLogger
	metrics    *metrics.QueueMetrics

	onDelivered func(Item[T])
	onDropped   func(Item[T], error)
	onRetry     func(Item[T], time.Duration, error)

	mu       sync.Mutex
	items    []*Item[T]
	draining bool
	idle     chan struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithMaxRetries sets how many failed sends an item survives.
func WithMaxRetries[T any](n int) Option[T] {
	return func(q *Queue[T]) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay[T any](d time.Duration) Option[T] {
	return func(q *Queue[T]) {
		if d > 0 {
			q.baseDelay = d
		}
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay[T any](d time.Duration) Option[T] {
	return func(q *Queue[T]) {
		if d > 0 {
			q.maxDelay = d
		}
	}
}

// WithJitter enables full jitter: each delay is drawn uniformly from
// [0, backoff].
func WithJitter[T any](enabled bool) Option[T] {
	return func(q *Queue[T]) { q.jitter = enabled }
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper[T any](s Sleeper) Option[T] {
	return func(q *Queue[T]) { q.sleep = s }
}

// WithLogger sets the structured logger for retries and drops.
func WithLogger[T any](l applog.CategoryLogger) Option[T] {
	return func(q *Queue[T]) { q.log = l }
}

// WithMetrics attaches Prometheus recorders.
func WithMetrics[T any](m *metrics.QueueMetrics) Option[T] {
	return func(q *Queue[T]) { q.metrics = m }
}

// WithOnDelivered is called after an item is sent successfully.
func WithOnDelivered[T any](fn func(Item[T])) Option[T] {
	return func(q *Queue[T]) { q.onDelivered = fn }
}

// WithOnDropped is called when an item exhausts its retries.
func WithOnDropped[T any](fn func(Item[T], error)) Option[T] {
	return func(q *Queue[T]) { q.onDropped = fn }
}

// WithOnRetry is called before each backoff wait.
func WithOnRetry[T any](fn func(Item[T], time.Duration, error)) Option[T] {
	return func(q *Queue[T]) { q.onRetry = fn }
}

// New creates an idle queue. name labels logs and metrics.
func New[T any](name string, send SendFunc[T], opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		name:       name,
		send:       send,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		sleep:      sleepContext,
		log:        applog.Discard(applog.CategoryNetwork),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Backoff returns min(base*2^(retryCount-1), max). retryCount below 1 is
// treated as 1.
func Backoff(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := base
	for i := 1; i < retryCount; i++ {
		if d >= max || d > max/2 {
			return max
		}
		d *= 2
	}
	return min(d, max)
}

func (q *Queue[T]) delay(retryCount int) time.Duration {
	d := Backoff(retryCount, q.baseDelay, q.maxDelay)
	if q.jitter && d > 0 {
		d = rand.N(d + 1)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends payload and starts draining if the queue is idle.
func (q *Queue[T]) Enqueue(payload T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New(errors.ErrClosed).
			Component("retryqueue").
			Category(errors.CategoryQueue).
			Context("queue", q.name).
			Build()
	}
	q.items = append(q.items, &Item[T]{Payload: payload, CreatedAt: time.Now()})
	q.metrics.SetDepth(q.name, len(q.items))

	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		q.wg.Add(1)
		go q.drain()
	}
	return nil
}

// Len returns the number of pending items, including one being sent.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a snapshot of the pending items in delivery order.
func (q *Queue[T]) Pending() []Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item[T], 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	return out
}

// Idle reports whether no drain is running.
func (q *Queue[T]) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.draining
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.draining {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the drain goroutine, cancelling an in-flight send or backoff
// wait. Pending items are kept and reported by Pending.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue[T]) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			q.draining = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		payload := head.Payload
		q.mu.Unlock()

		start := time.Now()
		err := q.safeSend(payload)
		status := "success"
		if err != nil {
			status = "error"
		}
		q.metrics.RecordSend(q.name, status, time.Since(start).Seconds())

		q.mu.Lock()
		if err == nil {
			q.removeHeadLocked()
			item := *head
			q.mu.Unlock()

			q.metrics.RecordDelivered(q.name)
			q.callback("delivered", func() {
				if q.onDelivered != nil {
					q.onDelivered(item)
				}
			})
			continue
		}

		if q.closed {
			// The failure was most likely our own cancellation; keep the item.
			q.mu.Unlock()
			continue
		}

		head.RetryCount++
		item := *head
		if head.RetryCount > q.maxRetries {
			q.removeHeadLocked()
			q.mu.Unlock()

			q.metrics.RecordDrop(q.name)
			q.log.Error("delivery failed, dropping item", map[string]any{
				"queue":      q.name,
				"retryCount": item.RetryCount,
				"error":      err.Error(),
			})
			q.callback("dropped", func() {
				if q.onDropped != nil {
					q.onDropped(item, err)
				}
			})
			continue
		}
		q.mu.Unlock()

		wait := q.delay(item.RetryCount)
		q.metrics.RecordRetry(q.name)
		q.log.Warn("delivery failed, retrying", map[string]any{
			"queue":   q.name,
			"retry":   item.RetryCount,
			"delayMs": wait.Milliseconds(),
			"error":   err.Error(),
		})
		q.callback("retry", func() {
			if q.onRetry != nil {
				q.onRetry(item, wait, err)
			}
		})

		// A cancelled wait falls through to the closed check at the top.
		_ = q.sleep(q.ctx, wait)
	}
}

func (q *Queue[T]) removeHeadLocked() {
	q.items[0] = nil
	q.items = slices.Delete(q.items, 0, 1)
	q.metrics.SetDepth(q.name, len(q.items))
}

func (q *Queue[T]) safeSend(payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Recovered(r, "retryqueue", errors.CategoryTransport)
		}
	}()
	if err := q.send(q.ctx, payload); err != nil {
		return err
	}
	return nil
}

func (q *Queue[T]) callback(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("queue callback panicked", map[string]any{
				"queue":    q.name,
				"callback": kind,
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	fn()
}
