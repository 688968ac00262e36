// Package projection builds local timelines from observed events.
// Handles ordering and deduplication. Does not emit events or interact
// with the transport directly.
package projection

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
)

// Timeline is one view's local copy of a conversation, fed both by
// re-fetched pages and by live bus events. Entries are kept in
// (CreatedAt, ID) order and indexed by message id. Inserting a duplicate,
// expected under at-least-once delivery or a reconnect overlap, is a
// no-op by construction.
type Timeline struct {
	entries []domain.Message
	byID    map[uuid.UUID]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[uuid.UUID]struct{})}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	if evt, ok := e.(event.MessageInserted); ok {
		t.Insert(evt.Message)
	}
	return nil
}

// Insert adds a message at its sorted position. Appending is O(1) for the
// common in-order case; a late arrival is placed by binary search.
// Duplicate ids are ignored.
func (t *Timeline) Insert(message domain.Message) bool {
	if _, seen := t.byID[message.ID]; seen {
		return false
	}
	t.byID[message.ID] = struct{}{}

	if n := len(t.entries); n == 0 || t.entries[n-1].Before(message) {
		t.entries = append(t.entries, message)
		return true
	}

	at := sort.Search(len(t.entries), func(i int) bool {
		return message.Before(t.entries[i])
	})
	t.entries = append(t.entries, domain.Message{})
	copy(t.entries[at+1:], t.entries[at:])
	t.entries[at] = message
	return true
}

// Messages returns the timeline oldest first. The slice is shared; callers
// must not mutate it.
func (t *Timeline) Messages() []domain.Message {
	return t.entries
}

func (t *Timeline) Len() int {
	return len(t.entries)
}
