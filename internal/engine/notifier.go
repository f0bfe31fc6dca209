package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

// DefaultAuditTimeout bounds a single audit send.
const DefaultAuditTimeout = 10 * time.Second

// Notifier mirrors committed effects to the audit chat.
//
// Broadcasts are fire-and-forget: each runs in its own goroutine on a
// context detached from the turn, and a failure is logged and counted but
// never reaches the operator. Nothing is retried.
//
// Thread-safety: Notify and Wait are safe for concurrent use.
type Notifier struct {
	messenger   transport.Messenger
	destination model.ChatID
	timeout     time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithAuditTimeout overrides DefaultAuditTimeout.
func WithAuditTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithNotifierLogger sets the logger. Defaults to slog.Default().
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

// NewNotifier creates a notifier posting to destination. A zero
// destination disables broadcasting.
func NewNotifier(m transport.Messenger, destination model.ChatID, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		messenger:   m,
		destination: destination,
		timeout:     DefaultAuditTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if destination == 0 {
		n.logger.Warn("audit destination not configured, broadcasts disabled")
	}
	return n
}

// Enabled reports whether a destination is configured.
func (n *Notifier) Enabled() bool {
	return n.destination != 0
}

// Notify posts summary to the audit chat in the background.
func (n *Notifier) Notify(ctx context.Context, summary string) {
	if !n.Enabled() {
		recordAudit("disabled")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("audit broadcast panicked", "panic", r)
				recordAudit("failed")
			}
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if _, err := n.messenger.Send(sendCtx, n.destination, summary, nil); err != nil {
			n.logger.Error("audit broadcast failed",
				"destination", int64(n.destination),
				"error", err,
			)
			recordAudit("failed")
			return
		}
		recordAudit("delivered")
	}()
}

// Wait blocks until every in-flight broadcast has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
