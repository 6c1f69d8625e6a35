// Package alert pushes severe log entries and dropped deliveries to chat or
// mail services through shoutrrr.
package alert

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultBacklog  = 32
	maxMessageRunes = 1000
)

// Sender delivers one message to every configured service.
// *router.ServiceRouter implements it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Config configures the notifier
type Config struct {
	URLs     []string
	MinLevel applog.Level
	AppName  string
	Timeout  time.Duration
}

type message struct {
	title string
	body  string
}

// Notifier is an applog.Observer that forwards entries at or above MinLevel.
// Sending happens on a background goroutine; a full backlog drops alerts.
type Notifier struct {
	sender   Sender
	minLevel applog.Level
	appName  string
	log      logger.Logger

	queue     chan message
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewNotifier builds a shoutrrr router from cfg.URLs. It returns a disabled
// notifier when no URL is configured.
func NewNotifier(cfg Config, log logger.Logger) (*Notifier, error) {
	if len(cfg.URLs) == 0 {
		return NewNotifierWithSender(nil, cfg, log), nil
	}
	sender, err := shoutrrr.CreateSender(cfg.URLs...)
	if err != nil {
		return nil, errors.New(err).
			Component("alert").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(cfg.URLs)).
			Build()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sender.Timeout = timeout
	sender.SetLogger(discardLogger())
	return NewNotifierWithSender(sender, cfg, log), nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// NewNotifierWithSender creates a notifier on an existing sender. A nil
// sender yields a disabled notifier.
func NewNotifierWithSender(sender Sender, cfg Config, lg logger.Logger) *Notifier {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	if cfg.AppName == "" {
		cfg.AppName = "weapp"
	}
	n := &Notifier{
		sender:   sender,
		minLevel: cfg.MinLevel,
		appName:  cfg.AppName,
		log:      lg.Module("alert"),
		done:     make(chan struct{}),
	}
	if sender == nil {
		close(n.done)
		return n
	}
	n.queue = make(chan message, defaultBacklog)
	go n.run()
	return n
}

// Enabled reports whether alerts are sent anywhere.
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// ObserveEntry implements applog.Observer.
func (n *Notifier) ObserveEntry(e applog.Entry) {
	if !n.Enabled() || e.Level < n.minLevel {
		return
	}
	title := fmt.Sprintf("[%s] %s %s", n.appName, e.Level, e.Category)
	var b strings.Builder
	b.WriteString(e.Message)
	if route, ok := e.Context["route"].(string); ok && route != "" {
		fmt.Fprintf(&b, "\npage: %s", route)
	}
	fmt.Fprintf(&b, "\nsession: %s\nentry: %s", e.SessionID, e.ID)
	n.enqueue(message{title: title, body: b.String()})
}

// NotifyDrop reports an item a retry queue gave up on.
func (n *Notifier) NotifyDrop(queue, summary string, err error) {
	if !n.Enabled() {
		return
	}
	body := fmt.Sprintf("queue %s dropped an item after the final retry: %s", queue, summary)
	if err != nil {
		body += "\nlast error: " + err.Error()
	}
	n.enqueue(message{title: fmt.Sprintf("[%s] delivery dropped", n.appName), body: body})
}

func (n *Notifier) enqueue(m message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- m:
	default:
		n.log.Warn("alert backlog full, dropping alert", logger.String("title", m.title))
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for m := range n.queue {
		params := stypes.Params{}
		params.SetTitle(m.title)
		for _, err := range n.sender.Send(truncate(m.body), &params) {
			if err != nil {
				n.log.Warn("alert delivery failed", logger.Error(err))
			}
		}
	}
}

// Close stops accepting alerts and waits for the backlog to be sent.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		if n.queue != nil {
			close(n.queue)
		}
		n.mu.Unlock()
	})
	<-n.done
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes-1]) + "…"
}
