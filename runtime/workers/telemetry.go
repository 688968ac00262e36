package workers

import (
	"context"
	"log/slog"
	"time"

	"loft-messaging/domain/event"
)

// TelemetryWorker drains the observability copy of the event stream and
// periodically logs per-topic throughput. Purely observational: losing
// telemetry events never affects delivery.
type TelemetryWorker struct {
	log    *slog.Logger
	events chan event.DomainEvent
}

func NewTelemetryWorker(log *slog.Logger, events chan event.DomainEvent) *TelemetryWorker {
	return &TelemetryWorker{log: log, events: events}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	counts := make(map[event.Topic]int)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case evt := <-w.events:
			counts[evt.Topic()]++
		case <-ticker.C:
			if len(counts) == 0 {
				continue
			}
			total := 0
			for _, c := range counts {
				total += c
			}
			w.log.Debug("Event throughput", "topics", len(counts), "events", total)
			counts = make(map[event.Topic]int)
		}
	}
}
