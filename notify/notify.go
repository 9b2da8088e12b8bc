// Package notify delivers "earlier appointment found" alerts.
//
// A [Notifier] sends one [Message]. Concrete notifiers cover email through
// Mailgun, a Discord channel, and the structured log; [Multi] fans a message
// out to several notifiers and [Retry] adds bounded exponential backoff.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoRecipients is returned by notifiers constructed without anyone to
// deliver to.
var ErrNoRecipients = errors.New("notify: no recipients")

// Message is a single alert.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers messages. Implementations must be safe for concurrent
// use, [Multi] calls them from several goroutines.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Log writes messages to a structured logger. It is the notifier used for
// dry runs and when nothing else is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a [Log] notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs msg at Info. It never fails.
func (l *Log) Notify(_ context.Context, msg Message) error {
	l.logger.Info("notification", "subject", msg.Subject, "body", msg.Body)
	return nil
}
