package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loft-messaging/contract"
	"loft-messaging/domain/event"
	"loft-messaging/runtime/workers"
)

// Orchestrator is the real-time event bus: it owns the published-event
// channel, the subscription registry, and the supervised fan-out worker.
//
// Publish is fire-and-forget relative to the caller's transaction and must
// only be invoked after commit. A full channel drops the event with a
// warning rather than blocking a mutating request; subscribers recover
// through their re-fetch paths.
type Orchestrator struct {
	mu              sync.Mutex
	log             *slog.Logger
	supervisor      contract.ISupervisor
	registry        contract.IRegistry
	permanentSinks  []contract.EventSink
	domainEvents    chan event.DomainEvent
	telemetryEvents chan event.DomainEvent
	sinkTimeout     time.Duration
	metricInterval  time.Duration
	started         bool
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor *workers.Supervisor,
	registry *Registry,
	bufferSize int,
	sinkTimeout, metricInterval time.Duration,
) *Orchestrator {
	return &Orchestrator{
		log:             log,
		supervisor:      supervisor,
		registry:        registry,
		domainEvents:    make(chan event.DomainEvent, bufferSize),
		telemetryEvents: make(chan event.DomainEvent, bufferSize),
		sinkTimeout:     sinkTimeout,
		metricInterval:  metricInterval,
	}
}

// Add registers permanent sinks receiving every published event,
// regardless of topic. Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

func (o *Orchestrator) Publish(e event.DomainEvent) {
	select {
	case o.domainEvents <- e:
	default:
		o.log.Warn("Event channel full, dropping event", "topic", e.Topic())
	}
}

func (o *Orchestrator) Subscribe(subscriberID string, topic event.Topic, sink contract.EventSink) {
	o.registry.Subscribe(subscriberID, topic, sink)
}

func (o *Orchestrator) Unsubscribe(subscriberID string, topic event.Topic) {
	o.registry.Unsubscribe(subscriberID, topic)
}

// Start wires the fan-out and health workers under the supervisor and
// launches them. It returns immediately; Stop triggers the shutdown.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.log.Info("Orchestrator already started")
		return
	}
	o.started = true

	fanout := workers.NewEventFanout(
		o.log, o.permanentSinks, o.registry,
		o.domainEvents, o.telemetryEvents, o.sinkTimeout,
	)
	o.supervisor.Add(fanout)
	o.supervisor.Add(workers.NewHealthMonitoringWorker(o.log, o.metricInterval))
	o.supervisor.Add(workers.NewTelemetryWorker(o.log, o.telemetryEvents))

	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(ctx)
}

// Stop initiates a graceful shutdown of the fan-out pipeline.
// Closing is immediate for subscribers; in-flight writes are unaffected.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
