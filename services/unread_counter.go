package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"loft-messaging/domain/event"
	"loft-messaging/repositories"
)

// UnreadCounter keeps an in-memory unread badge figure per user, fed by
// the bus. Delivery is at least once, so it tracks the contributing
// notification ids: a redelivered insert of an already-tracked id changes
// nothing, and a read transition only decrements while the id is tracked.
// The figure is a cache; Refresh reconciles it against storage.
type UnreadCounter struct {
	notifications repositories.INotificationRepository
	log           *slog.Logger

	mu      sync.RWMutex
	tracked map[string]map[uuid.UUID]struct{}
}

func NewUnreadCounter(notifications repositories.INotificationRepository, log *slog.Logger) *UnreadCounter {
	return &UnreadCounter{
		notifications: notifications,
		log:           log,
		tracked:       make(map[string]map[uuid.UUID]struct{}),
	}
}

// Consume implements contract.EventSink. Non-notification events are
// ignored so the counter can run as a permanent sink on the full stream.
func (c *UnreadCounter) Consume(_ context.Context, e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.NotificationInserted:
		if !ev.Notification.IsRead {
			c.track(ev.Notification.UserID, ev.Notification.ID)
		}
	case event.NotificationUpdated:
		if !ev.WasRead && ev.Notification.IsRead {
			c.untrack(ev.Notification.UserID, ev.Notification.ID)
		}
	}
	return nil
}

// Count returns the cached unread figure for userID.
func (c *UnreadCounter) Count(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracked[userID])
}

// Reset forgets the cached state for userID. Used after bulk read
// transitions where replaying per-row updates would be wasteful.
func (c *UnreadCounter) Reset(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, userID)
}

// Refresh rebuilds the cached state from storage, the authoritative
// recount a client triggers when its badge looks stale.
func (c *UnreadCounter) Refresh(_ context.Context, userID string) (int, error) {
	ids, err := c.notifications.UnreadIDs(userID)
	if err != nil {
		return 0, err
	}
	fresh := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}
	c.mu.Lock()
	if len(fresh) == 0 {
		delete(c.tracked, userID)
	} else {
		c.tracked[userID] = fresh
	}
	c.mu.Unlock()
	return len(fresh), nil
}

func (c *UnreadCounter) track(userID string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.tracked[userID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		c.tracked[userID] = ids
	}
	ids[id] = struct{}{}
}

func (c *UnreadCounter) untrack(userID string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.tracked[userID]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(c.tracked, userID)
	}
}
