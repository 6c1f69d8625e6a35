// Package store implements the observable key-value state container.
//
// Writes go through an ordered middleware pipeline and are shallow-merged
// into the state before SetState returns, so a caller always reads its own
// write. Subscribers of every key present in the final patch are then
// notified with (newValue, oldValue). Notifications are delivered one patch
// at a time in merge order: a write issued while subscribers are running,
// whether from a subscriber or another goroutine, is merged immediately and
// its notifications are delivered after the ones already queued.
package store

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
)

// Patch is a set of key writes.
type Patch map[string]any

// Middleware transforms a proposed patch. state is a copy of the current
// state. Returning nil passes the patch through unchanged.
type Middleware func(state map[string]any, patch Patch) Patch

// Subscriber is called with the new and previous value of one key.
type Subscriber func(newValue, oldValue any)

type subscription struct {
	id uint64
	fn Subscriber
}

// Store is safe for concurrent use.
type Store struct {
	// writeMu serializes the pipeline and merge of one write.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      map[string]any
	middleware []Middleware
	subs       map[string][]subscription
	nextID     uint64
	queue      []notification
	notifying  bool

	log     applog.CategoryLogger
	metrics *metrics.StoreMetrics
	equal   func(a, b any) bool
}

// Option configures a Store.
type Option func(*Store)

// WithInitialState seeds the state.
func WithInitialState(state map[string]any) Option {
	return func(s *Store) {
		maps.Copy(s.state, state)
	}
}

// WithLogger sets the logger for middleware and subscriber failures.
func WithLogger(l applog.CategoryLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics attaches Prometheus recorders.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithEquality suppresses notifications for keys whose value is unchanged
// according to equal. By default every key in the final patch notifies.
func WithEquality(equal func(a, b any) bool) Option {
	return func(s *Store) { s.equal = equal }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		state: make(map[string]any),
		subs:  make(map[string][]subscription),
		log:   applog.Discard(applog.CategoryData),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetState returns a shallow copy of the whole state.
func (s *Store) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.state)
}

// Get returns the value of key. A missing key is not an error.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// Set writes a single key.
func (s *Store) Set(key string, value any) {
	s.SetState(Patch{key: value})
}

// SetState runs patch through the middleware, merges it and notifies.
// Middleware must not write to the store.
func (s *Store) SetState(patch Patch) {
	if len(patch) == 0 {
		return
	}
	patch = maps.Clone(patch)
	s.Update(func(map[string]any) Patch { return patch })
}

// Update is an atomic read-modify-write: fn receives a copy of the current
// state and returns the patch to write, or nil to write nothing. No other
// write is merged between the read and the merge. fn must not write to the
// store.
func (s *Store) Update(fn func(state map[string]any) Patch) {
	s.writeMu.Lock()
	s.apply(fn)
	s.writeMu.Unlock()

	s.dispatch()
}

type notification struct {
	key      string
	newValue any
	oldValue any
	subs     []subscription
}

// apply runs one write under writeMu and queues its notifications.
func (s *Store) apply(fn func(state map[string]any) Patch) {
	s.mu.Lock()
	snapshot := maps.Clone(s.state)
	pipeline := slices.Clone(s.middleware)
	s.mu.Unlock()

	patch := fn(maps.Clone(snapshot))
	if len(patch) == 0 {
		return
	}
	for i, mw := range pipeline {
		if next := s.runMiddleware(i, mw, snapshot, patch); next != nil {
			patch = next
		}
	}
	if len(patch) == 0 {
		return
	}

	keys := slices.Sorted(maps.Keys(patch))

	s.mu.Lock()
	for _, key := range keys {
		old := s.state[key]
		s.state[key] = patch[key]
		if s.equal != nil && s.equal(old, patch[key]) {
			continue
		}
		if subs := s.subs[key]; len(subs) > 0 {
			s.queue = append(s.queue, notification{key: key, newValue: patch[key], oldValue: old, subs: slices.Clone(subs)})
		}
	}
	s.mu.Unlock()
	s.metrics.RecordUpdate()
}

// dispatch delivers queued notifications unless another call is already
// delivering them, in which case that call picks up the new ones.
func (s *Store) dispatch() {
	s.mu.Lock()
	if s.notifying {
		s.mu.Unlock()
		return
	}
	s.notifying = true
	for len(s.queue) > 0 {
		n := s.queue[0]
		s.queue = slices.Delete(s.queue, 0, 1)
		s.mu.Unlock()
		for _, sub := range n.subs {
			s.notify(n, sub)
		}
		s.mu.Lock()
	}
	s.notifying = false
	s.mu.Unlock()
}

func (s *Store) runMiddleware(i int, mw Middleware, state map[string]any, patch Patch) (out Patch) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("state middleware panicked, patch passed through", map[string]any{
				"middleware": i,
				"panic":      fmt.Sprint(r),
			})
			out = nil
		}
	}()
	return mw(maps.Clone(state), maps.Clone(patch))
}

func (s *Store) notify(n notification, sub subscription) {
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			s.log.Error("state listener error", map[string]any{
				"key":   n.key,
				"panic": fmt.Sprint(r),
			})
		}
		s.metrics.RecordNotification(n.key, failed)
	}()
	sub.fn(n.newValue, n.oldValue)
}

// Subscribe registers fn for key. The returned function removes exactly
// this subscription and is safe to call more than once.
func (s *Store) Subscribe(key string, fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], subscription{id: id, fn: fn})
	s.metrics.SetSubscribers(s.subscriberCountLocked())
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs[key] = slices.DeleteFunc(s.subs[key], func(sub subscription) bool { return sub.id == id })
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			s.metrics.SetSubscribers(s.subscriberCountLocked())
		})
	}
}

// SubscriberCount returns the number of subscriptions on key.
func (s *Store) SubscriberCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[key])
}

func (s *Store) subscriberCountLocked() int {
	n := 0
	for _, subs := range s.subs {
		n += len(subs)
	}
	return n
}

// Use appends mw to the pipeline.
func (s *Store) Use(mw Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw)
}

// Tx stages writes inside Batch.
type Tx struct {
	base  map[string]any
	patch Patch
}

// Get returns the staged value of key, or the value at the start of the batch.
func (tx *Tx) Get(key string) (any, bool) {
	if v, ok := tx.patch[key]; ok {
		return v, true
	}
	v, ok := tx.base[key]
	return v, ok
}

// Set stages one write.
func (tx *Tx) Set(key string, value any) {
	tx.patch[key] = value
}

// Merge stages every key of p.
func (tx *Tx) Merge(p Patch) {
	maps.Copy(tx.patch, p)
}

// State returns the state as it will look after the batch, before middleware.
func (tx *Tx) State() map[string]any {
	out := maps.Clone(tx.base)
	maps.Copy(out, tx.patch)
	return out
}

// Batch coalesces the writes staged by fn into one atomic write. fn must
// stage writes through tx only. Nothing is written if fn panics; the panic
// is logged.
func (s *Store) Batch(fn func(tx *Tx)) {
	s.Update(func(state map[string]any) (out Patch) {
		tx := &Tx{base: state, patch: Patch{}}
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("state batch panicked, writes discarded", map[string]any{"panic": fmt.Sprint(r)})
				out = nil
			}
		}()
		fn(tx)
		return tx.patch
	})
}
