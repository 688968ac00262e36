// This file defines Message entities and related rules.
// Messages are immutable once delivered, except for the explicit
// content edit which flips the Edited flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// Message represents one entry of a conversation timeline.
// CreatedAt is monotonically non-decreasing per conversation in insertion
// order; ties are broken by the time-ordered ID so consumers can always
// produce a stable (CreatedAt, ID) sort.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	Type           MessageType
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Edited         bool
}

// Before reports whether m sorts strictly before other in the
// (CreatedAt, ID) total order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}
