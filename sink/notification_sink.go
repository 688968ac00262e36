package sink

import (
	"context"
	"log/slog"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
)

// MessageNotifier is the dispatcher half the sink delegates to.
type MessageNotifier interface {
	OnMessageInserted(ctx context.Context, message domain.Message) error
}

// NotificationSink is the permanent sink turning message inserts into
// notification rows. It reacts to MessageInserted only; redelivery of the
// same event is absorbed by the dispatcher's (message, recipient) dedup.
type NotificationSink struct {
	notifier MessageNotifier
	log      *slog.Logger
}

func NewNotificationSink(notifier MessageNotifier, log *slog.Logger) *NotificationSink {
	return &NotificationSink{notifier: notifier, log: log}
}

func (s *NotificationSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageInserted:
		return s.notifier.OnMessageInserted(ctx, evt.Message)
	default:
		return nil
	}
}
