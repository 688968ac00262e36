package workers

import (
	"context"
	"log/slog"
	"time"

	"loft-messaging/contract"
	"loft-messaging/domain/event"
)

// EventFanout delivers published domain events to their consumers:
// the permanent sinks first (notification dispatcher, unread counters,
// telemetry), then every session sink subscribed to the event's topic.
//
// A single goroutine drains the channel, so events on the same topic reach
// a given subscriber in publish order. Delivery is at-least-once and
// decoupled from the transaction that produced the event; a sink observing
// an event may assume the underlying row is committed. Sink errors are
// logged, never propagated: a slow or dead subscriber cannot fail the
// operation that triggered the event.
type EventFanout struct {
	log         *slog.Logger
	permanent   []contract.EventSink
	registry    contract.IRegistry
	events      chan event.DomainEvent
	telemetry   chan event.DomainEvent
	sinkTimeout time.Duration
}

func NewEventFanout(
	log *slog.Logger,
	permanent []contract.EventSink,
	registry contract.IRegistry,
	events, telemetry chan event.DomainEvent,
	sinkTimeout time.Duration,
) *EventFanout {
	return &EventFanout{
		log:         log,
		permanent:   permanent,
		registry:    registry,
		events:      events,
		telemetry:   telemetry,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
			select {
			case w.telemetry <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout delivers one event to the permanent sinks and to the topic's
// current subscribers, each under the sink timeout.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.permanent {
		w.deliver(ctx, sink, evt)
	}
	for _, sink := range w.registry.GetSinksForTopic(evt.Topic()) {
		w.deliver(ctx, sink, evt)
	}
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Error("Sink failed to consume event", "topic", evt.Topic(), "error", err)
	}
}
