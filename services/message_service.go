//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"loft-messaging/contract"
	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/errors"
	"loft-messaging/moderation"
	"loft-messaging/repositories"
)

type IMessageService interface {
	Append(ctx context.Context, conversationID uuid.UUID, senderID, content string, messageType domain.MessageType) (domain.Message, error)
	List(ctx context.Context, conversationID uuid.UUID, userID string, cursor *string, limit int, direction repositories.ListDirection) ([]domain.Message, *string, error)
}

type MessageService struct {
	messages  repositories.IMessageRepository
	convs     repositories.IConversationRepository
	bus       contract.IEventBus
	moderator *moderation.Moderator
	log       *slog.Logger
}

func NewMessageService(
	messages repositories.IMessageRepository,
	convs repositories.IConversationRepository,
	bus contract.IEventBus,
	moderator *moderation.Moderator,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		messages:  messages,
		convs:     convs,
		bus:       bus,
		moderator: moderator,
		log:       log,
	}
}

// Append validates, censors and persists a message, then publishes the
// insert event on the conversation topic. The event leaves only after the
// row is durably committed; a delivery failure can therefore never
// invalidate the message itself. A rejected append produces no row and no
// event.
func (s *MessageService) Append(ctx context.Context, conversationID uuid.UUID, senderID, content string, messageType domain.MessageType) (domain.Message, error) {
	ok, err := s.convs.IsParticipant(conversationID, senderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, fmt.Errorf("sender %s: %w", senderID, errors.ErrNotAParticipant)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if messageType == "" {
		messageType = domain.MessageText
	}
	if s.moderator != nil {
		content = s.moderator.Censor(content)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, err
	}
	now := time.Now().UTC()
	message, err := s.messages.Append(domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           messageType,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.convs.TouchUpdatedAt(conversationID, message.CreatedAt); err != nil {
		s.log.Warn("Failed to bump conversation activity",
			"conversation_id", conversationID, "error", err)
	}

	s.bus.Publish(event.MessageInserted{Message: message})
	return message, nil
}

// List pages through a conversation. Only participants may read; listing
// also bumps the reader's last-read marker, which feeds the unread
// preview counts.
func (s *MessageService) List(ctx context.Context, conversationID uuid.UUID, userID string, cursor *string, limit int, direction repositories.ListDirection) ([]domain.Message, *string, error) {
	ok, err := s.convs.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("reader %s: %w", userID, errors.ErrNotAParticipant)
	}

	messages, next, err := s.messages.List(conversationID, cursor, limit, direction)
	if err != nil {
		return nil, nil, err
	}

	if err := s.convs.UpdateLastRead(conversationID, userID, time.Now().UTC()); err != nil {
		s.log.Warn("Failed to update last-read marker",
			"conversation_id", conversationID, "user_id", userID, "error", err)
	}
	return messages, next, nil
}
