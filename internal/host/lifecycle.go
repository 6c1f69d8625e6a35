// Package host is the glue between the embedding application and the
// substrate. It only relays lifecycle signals the host raises; it never
// originates them.
package host

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

// NetworkStatus is delivered on network changes.
type NetworkStatus struct {
	IsConnected bool   `json:"isConnected"`
	NetworkType string `json:"networkType"` // wifi, 4g, none, ...
}

// PanicError is a recovered panic with the stack of the panicking goroutine.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Stack returns the captured goroutine stack.
func (e *PanicError) Stack() string { return e.StackTrace }

type listener[T any] struct {
	id uint64
	fn func(T)
}

type listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	items  []listener[T]
}

func (ls *listeners[T]) add(fn func(T)) func() {
	ls.mu.Lock()
	ls.nextID++
	id := ls.nextID
	ls.items = append(ls.items, listener[T]{id: id, fn: fn})
	ls.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			defer ls.mu.Unlock()
			ls.items = slices.DeleteFunc(ls.items, func(l listener[T]) bool { return l.id == id })
		})
	}
}

func (ls *listeners[T]) snapshot() []listener[T] {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return slices.Clone(ls.items)
}

func (ls *listeners[T]) len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.items)
}

// Lifecycle fans host signals out to subscribers. A panicking listener is
// logged and does not stop the others.
type Lifecycle struct {
	log logger.Logger

	errs       listeners[error]
	rejections listeners[any]
	network    listeners[NetworkStatus]
	show       listeners[struct{}]
	hide       listeners[struct{}]

	wg sync.WaitGroup
}

// NewLifecycle creates an emitter logging listener failures to log.
func NewLifecycle(log logger.Logger) *Lifecycle {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Lifecycle{log: log.Module("host")}
}

// OnError subscribes to uncaught errors.
func (l *Lifecycle) OnError(fn func(error)) func() { return l.errs.add(fn) }

// OnUnhandledRejection subscribes to failures of background work nobody waited on.
func (l *Lifecycle) OnUnhandledRejection(fn func(any)) func() { return l.rejections.add(fn) }

// OnNetworkStatusChange subscribes to connectivity changes.
func (l *Lifecycle) OnNetworkStatusChange(fn func(NetworkStatus)) func() { return l.network.add(fn) }

// OnAppShow subscribes to the application entering the foreground.
func (l *Lifecycle) OnAppShow(fn func()) func() {
	return l.show.add(func(struct{}) { fn() })
}

// OnAppHide subscribes to the application entering the background.
func (l *Lifecycle) OnAppHide(fn func()) func() {
	return l.hide.add(func(struct{}) { fn() })
}

// EmitError delivers err to OnError listeners.
func (l *Lifecycle) EmitError(err error) {
	if err == nil {
		return
	}
	emit(l, "error", &l.errs, err)
}

// EmitUnhandledRejection delivers reason to OnUnhandledRejection listeners.
func (l *Lifecycle) EmitUnhandledRejection(reason any) {
	emit(l, "unhandledRejection", &l.rejections, reason)
}

// EmitNetworkStatusChange delivers status to OnNetworkStatusChange listeners.
func (l *Lifecycle) EmitNetworkStatusChange(status NetworkStatus) {
	emit(l, "networkStatusChange", &l.network, status)
}

// EmitAppShow notifies OnAppShow listeners.
func (l *Lifecycle) EmitAppShow() { emit(l, "appShow", &l.show, struct{}{}) }

// EmitAppHide notifies OnAppHide listeners.
func (l *Lifecycle) EmitAppHide() { emit(l, "appHide", &l.hide, struct{}{}) }

// ListenerCount reports the number of error and rejection listeners.
func (l *Lifecycle) ListenerCount() int {
	return l.errs.len() + l.rejections.len()
}

func emit[T any](l *Lifecycle, signal string, ls *listeners[T], v T) {
	for _, item := range ls.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("lifecycle listener panicked",
						logger.String("signal", signal),
						logger.Any("panic", r))
				}
			}()
			item.fn(v)
		}()
	}
}

// Recover turns a panic in the calling goroutine into an EmitError. It must
// be deferred directly: defer lc.Recover().
func (l *Lifecycle) Recover() {
	if r := recover(); r != nil {
		l.EmitError(&PanicError{Value: r, StackTrace: string(debug.Stack())})
	}
}

// Go runs fn in the background. A returned error is emitted as an
// unhandled rejection and a panic as an error.
func (l *Lifecycle) Go(fn func() error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.Recover()
		if err := fn(); err != nil {
			l.EmitUnhandledRejection(err)
		}
	}()
}

// Wait blocks until every function started with Go has returned.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}
