// Package runtime handles event propagation and subscription lifecycles.
// It orchestrates the system without containing business logic or domain
// rules.
package runtime

import (
	"sync"

	"loft-messaging/contract"
	"loft-messaging/domain/event"
)

// Registry tracks live subscriptions per topic. A subscriber holds one
// subscription per open conversation view plus one for its notification
// channel; each is identified by a caller-chosen subscriber id so a user
// connected twice gets two independent sinks.
type Registry struct {
	mu     sync.RWMutex
	topics map[event.Topic]map[string]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[event.Topic]map[string]contract.EventSink),
	}
}

// GetSinksForTopic snapshots the active sinks of a topic. Returns nil when
// nobody listens.
func (r *Registry) GetSinksForTopic(topic event.Topic) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers, ok := r.topics[topic]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(subscribers))
	for _, sink := range subscribers {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (r *Registry) Subscribe(subscriberID string, topic event.Topic, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topic]; !ok {
		r.topics[topic] = make(map[string]contract.EventSink)
	}
	r.topics[topic][subscriberID] = sink
}

// Unsubscribe removes a subscription immediately. It never touches other
// subscribers and leaves no empty topic entries behind.
func (r *Registry) Unsubscribe(subscriberID string, topic event.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(r.topics, topic)
	}
}
