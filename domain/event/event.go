// Package event defines the closed union of events carried by the bus.
// Payloads are explicit structs, never untyped blobs. Every event names
// the single topic it is published on.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"loft-messaging/domain"
)

// Topic scopes delivery. Two families exist:
// conversation:{id} for message and participant changes, and
// user:{id}:notifications for notification changes of one recipient.
type Topic string

func ConversationTopic(id uuid.UUID) Topic {
	return Topic(fmt.Sprintf("conversation:%s", id))
}

func UserNotificationsTopic(userID string) Topic {
	return Topic(fmt.Sprintf("user:%s:notifications", userID))
}

// DomainEvent is delivered at least once to each live subscription of its
// topic, in publish order per subscriber. Consumers de-duplicate by id.
type DomainEvent interface {
	Topic() Topic
}

type MessageInserted struct {
	Message domain.Message
}

func (e MessageInserted) Topic() Topic {
	return ConversationTopic(e.Message.ConversationID)
}

type ParticipantAdded struct {
	ConversationID uuid.UUID
	UserID         string
	Role           domain.ParticipantRole
	At             time.Time
}

func (e ParticipantAdded) Topic() Topic {
	return ConversationTopic(e.ConversationID)
}

type ParticipantRemoved struct {
	ConversationID uuid.UUID
	UserID         string
	At             time.Time
}

func (e ParticipantRemoved) Topic() Topic {
	return ConversationTopic(e.ConversationID)
}

type NotificationInserted struct {
	Notification domain.Notification
}

func (e NotificationInserted) Topic() Topic {
	return UserNotificationsTopic(e.Notification.UserID)
}

// NotificationUpdated is published on read-state transitions only.
// WasRead/IsRead let counters react to the false→true edge exactly once
// per transition even under redelivery.
type NotificationUpdated struct {
	Notification domain.Notification
	WasRead      bool
}

func (e NotificationUpdated) Topic() Topic {
	return UserNotificationsTopic(e.Notification.UserID)
}
