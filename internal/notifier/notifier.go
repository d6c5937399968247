// Package notifier sends task, probe and subscription outcomes through
// configured channels. The transports themselves (email, webhook, IM)
// are out of scope; this package ships only the interface, an
// in-process fan-out, and a logging fallback, exactly as much as taskd
// exercises internally.
package notifier

import (
	"context"
	"log/slog"
)

// Notifier delivers one message to a named channel. The channel string
// is opaque to callers -- it is whatever the Task's, probe's or
// Subscription's NotificationType names, interpreted by whichever
// Notifier implementation is wired in.
type Notifier interface {
	Send(ctx context.Context, channel, title, body string) error
}

// MultiNotifier fans a single Send call out to every wrapped Notifier,
// continuing past individual failures and returning the first error
// seen (if any).
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier wraps one or more Notifiers to be called together.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, channel, title, body string) error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, channel, title, body); err != nil {
			slog.Error("notifier: delivery failed", "channel", channel, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// SlogNotifier logs would-be notifications instead of delivering them.
// It is the zero-config default when no real transport is configured.
type SlogNotifier struct{}

func (SlogNotifier) Send(_ context.Context, channel, title, body string) error {
	slog.Info("notification", "channel", channel, "title", title, "body", body)
	return nil
}
