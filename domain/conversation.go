package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type ParticipantRole string

const (
	ParticipantAdmin  ParticipantRole = "admin"
	ParticipantMember ParticipantRole = "member"
)

// Conversation groups participants around a message timeline.
// A direct conversation has exactly two participants and no stored name;
// its display name is derived from the other participant at read time.
type Conversation struct {
	ID        uuid.UUID
	Type      ConversationType
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Conversation) IsDirect() bool {
	return c.Type == ConversationDirect
}

// Participant ties a user to a conversation. A user appears at most once
// per conversation. The role is scoped to the conversation.
type Participant struct {
	ConversationID uuid.UUID
	UserID         string
	Role           ParticipantRole
	JoinedAt       time.Time
	LastReadAt     time.Time
}

// DirectPairKey returns the unordered pair in a canonical order,
// used for the direct-conversation uniqueness key.
func DirectPairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
