// Package notifier models delivery to the outside world. The dispatcher
// stores its records regardless of what happens here; a Sink only decides the
// record's sent flag.
package notifier

import (
	"context"
	"log"

	"banking-settlement/internal/domain"
)

type Sink interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// LogSink stands in for the email/SMS gateway in local deployments.
type LogSink struct{}

func (LogSink) Send(_ context.Context, n *domain.Notification) error {
	log.Printf("[Notifier] %s -> %s: %s", n.Type, n.Recipient, n.Message)
	return nil
}

// Multi fans one notification out to several sinks. The first failure is
// returned after every sink has been attempted.
type Multi []Sink

func (m Multi) Send(ctx context.Context, n *domain.Notification) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Send(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
