// Package notify delivers push notifications.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/homewx/internal/metrics"
	"go.uber.org/zap"
)

// Message is a push notification.
type Message struct {
	Title   string
	Message string
	Sound   string
	// Attachment is the path of an image shown with the message.
	Attachment string
}

// Notifier sends a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards all messages.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

const dispatchTimeout = 30 * time.Second

// Dispatcher sends messages in the background. Callers never wait for the
// notification service and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// NewDispatcher wraps n. A nil n discards messages.
func NewDispatcher(n Notifier, logger *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	if n == nil {
		n = Nop{}
	}
	return &Dispatcher{notifier: n, logger: logger.Named("notify"), metrics: m}
}

// Dispatch sends msg asynchronously. The returned channel is closed once the
// attempt finished, which only tests care about.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()

		err := d.notifier.Notify(sendCtx, msg)
		switch {
		case err == nil:
			d.metrics.Notification("sent")
		case errors.Is(err, ErrLimitReached):
			d.metrics.Notification("dropped")
			d.logger.Warnw("notification dropped, message limit reached", "title", msg.Title)
		default:
			d.metrics.Notification("error")
			d.logger.Errorw("failed to send notification", "title", msg.Title, "error", err)
		}
	}()
	return done
}
