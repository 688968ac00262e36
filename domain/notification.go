package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is an alert owned by its recipient. Created by the
// dispatcher on domain events, mutated only by the owner marking it read,
// never deleted by the normal flow.
type Notification struct {
	ID        uuid.UUID
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	Link      string
	IsRead    bool
	CreatedAt time.Time

	// SourceMessageID is the dedup key origin for message-driven
	// notifications. Zero for notifications from other domain events.
	SourceMessageID uuid.UUID
}
