// Package sink holds the event consumers plugged into the fan-out:
// per-connection session sinks and the permanent dispatcher sink.
package sink

import (
	"context"
	"log/slog"
	"time"

	"loft-messaging/domain/event"
)

// SessionSink buffers events for one live subscriber connection.
// Consume never blocks the fan-out longer than the delivery timeout: a
// subscriber that stopped draining (disconnected, stalled) silently loses
// the event, which is covered by the reconnect/re-fetch contract.
type SessionSink struct {
	log             *slog.Logger
	Events          chan event.DomainEvent
	deliveryTimeout time.Duration
}

func NewSessionSink(log *slog.Logger, bufferSize int, deliveryTimeout time.Duration) *SessionSink {
	return &SessionSink{
		log:             log,
		Events:          make(chan event.DomainEvent, bufferSize),
		deliveryTimeout: deliveryTimeout,
	}
}

func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	default:
	}

	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()
	select {
	case s.Events <- e:
		return nil
	case <-timer.C:
		s.log.Debug("Session buffer full, dropping event", "topic", e.Topic())
		return nil
	case <-ctx.Done():
		return nil
	}
}
