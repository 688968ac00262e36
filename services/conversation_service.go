//go:generate go run go.uber.org/mock/mockgen -source=conversation_service.go -destination=../mocks/mock_conversation_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"loft-messaging/acl"
	"loft-messaging/contract"
	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/errors"
	"loft-messaging/repositories"
)

var validate = validator.New()

// groupRequest bounds the user-supplied group name to 1-140 characters
// after trimming. The bound is ours; the upstream behavior was
// unconstrained free text.
type groupRequest struct {
	Name string `validate:"required,min=1,max=140"`
}

// ConversationSummary is the list-view shape: the conversation plus the
// derived display name, last message and unread preview count.
type ConversationSummary struct {
	Conversation domain.Conversation
	DisplayName  string
	LastMessage  *domain.Message
	UnreadCount  int
	Participants []domain.Participant
}

type IConversationService interface {
	FindOrCreateDirect(ctx context.Context, userID, peerID string) (domain.Conversation, error)
	CreateGroup(ctx context.Context, creatorID string, memberIDs []string, name string) (domain.Conversation, error)
	AddParticipant(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error
	RemoveParticipant(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error
	Get(ctx context.Context, userID string, conversationID uuid.UUID) (ConversationSummary, error)
	ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error)
}

type ConversationService struct {
	resolver  *acl.Resolver
	convs     repositories.IConversationRepository
	messages  repositories.IMessageRepository
	directory contract.IDirectory
	bus       contract.IEventBus
	log       *slog.Logger
}

func NewConversationService(
	resolver *acl.Resolver,
	convs repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	directory contract.IDirectory,
	bus contract.IEventBus,
	log *slog.Logger,
) *ConversationService {
	return &ConversationService{
		resolver:  resolver,
		convs:     convs,
		messages:  messages,
		directory: directory,
		bus:       bus,
		log:       log,
	}
}

// FindOrCreateDirect returns the unique direct conversation between the
// requester and peer, creating it when absent. Repeat calls, from either
// end and concurrently, converge on the same conversation. The ACL is
// checked first and fails closed when the directory is unreachable.
func (s *ConversationService) FindOrCreateDirect(ctx context.Context, userID, peerID string) (domain.Conversation, error) {
	if userID == peerID {
		return domain.Conversation{}, fmt.Errorf("cannot open a conversation with oneself: %w", errors.ErrForbidden)
	}
	if err := s.resolver.CanMessage(ctx, userID, peerID); err != nil {
		return domain.Conversation{}, err
	}

	conv, created, err := s.convs.FindOrCreateDirect(userID, peerID, time.Now().UTC())
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		s.log.Info("Direct conversation created",
			"conversation_id", conv.ID, "user_id", userID, "peer_id", peerID)
		for _, id := range []string{userID, peerID} {
			s.bus.Publish(event.ParticipantAdded{
				ConversationID: conv.ID,
				UserID:         id,
				Role:           domain.ParticipantMember,
				At:             conv.CreatedAt,
			})
		}
	}
	return conv, nil
}

// CreateGroup creates a group conversation with the creator as
// conversation-admin. The member set excludes the creator and must not be
// empty; every member must be in the creator's allowed contact set.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID string, memberIDs []string, name string) (domain.Conversation, error) {
	name = strings.TrimSpace(name)
	if err := validate.Struct(groupRequest{Name: name}); err != nil {
		return domain.Conversation{}, fmt.Errorf("invalid group name: %w", err)
	}

	members := lo.Uniq(lo.Filter(memberIDs, func(id string, _ int) bool {
		return id != creatorID && id != ""
	}))
	if len(members) == 0 {
		return domain.Conversation{}, errors.ErrInsufficientMembers
	}

	if err := s.resolver.CanMessage(ctx, creatorID, members...); err != nil {
		return domain.Conversation{}, err
	}

	conv, err := s.convs.CreateGroup(creatorID, members, name, time.Now().UTC())
	if err != nil {
		return domain.Conversation{}, err
	}
	s.log.Info("Group conversation created",
		"conversation_id", conv.ID, "creator_id", creatorID, "members", len(members))

	s.bus.Publish(event.ParticipantAdded{
		ConversationID: conv.ID,
		UserID:         creatorID,
		Role:           domain.ParticipantAdmin,
		At:             conv.CreatedAt,
	})
	for _, id := range members {
		s.bus.Publish(event.ParticipantAdded{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           domain.ParticipantMember,
			At:             conv.CreatedAt,
		})
	}
	return conv, nil
}

// AddParticipant adds a user to a group conversation. Only a participant
// holding the conversation-admin role may add others.
func (s *ConversationService) AddParticipant(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error {
	conv, err := s.convs.Get(conversationID)
	if err != nil {
		return err
	}
	if conv.IsDirect() {
		return fmt.Errorf("direct conversations are fixed pairs: %w", errors.ErrForbidden)
	}
	if err := s.requireConversationAdmin(conversationID, actorID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.convs.AddParticipant(conversationID, userID, domain.ParticipantMember, now); err != nil {
		return err
	}
	s.bus.Publish(event.ParticipantAdded{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           domain.ParticipantMember,
		At:             now,
	})
	return nil
}

// RemoveParticipant removes a user from a group conversation. A user may
// always remove themself; removing someone else requires the
// conversation-admin role.
func (s *ConversationService) RemoveParticipant(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error {
	conv, err := s.convs.Get(conversationID)
	if err != nil {
		return err
	}
	if conv.IsDirect() {
		return fmt.Errorf("direct conversations are fixed pairs: %w", errors.ErrForbidden)
	}
	if actorID != userID {
		if err := s.requireConversationAdmin(conversationID, actorID); err != nil {
			return err
		}
	}

	if err := s.convs.RemoveParticipant(conversationID, userID); err != nil {
		return err
	}
	s.bus.Publish(event.ParticipantRemoved{
		ConversationID: conversationID,
		UserID:         userID,
		At:             time.Now().UTC(),
	})
	return nil
}

func (s *ConversationService) Get(ctx context.Context, userID string, conversationID uuid.UUID) (ConversationSummary, error) {
	ok, err := s.convs.IsParticipant(conversationID, userID)
	if err != nil {
		return ConversationSummary{}, err
	}
	if !ok {
		return ConversationSummary{}, errors.ErrNotAParticipant
	}
	conv, err := s.convs.Get(conversationID)
	if err != nil {
		return ConversationSummary{}, err
	}
	return s.summarize(ctx, userID, conv)
}

// ListForUser returns the user's conversations, most recently active
// first, each with derived display name, last message and unread count.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	convs, err := s.convs.ListForUser(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := s.summarize(ctx, userID, conv)
		if err != nil {
			s.log.Warn("Failed to summarize conversation",
				"conversation_id", conv.ID, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.UpdatedAt.After(summaries[j].Conversation.UpdatedAt)
	})
	return summaries, nil
}

func (s *ConversationService) summarize(ctx context.Context, userID string, conv domain.Conversation) (ConversationSummary, error) {
	participants, err := s.convs.Participants(conv.ID)
	if err != nil {
		return ConversationSummary{}, err
	}

	summary := ConversationSummary{
		Conversation: conv,
		DisplayName:  conv.Name,
		Participants: participants,
	}

	// The direct-conversation display name is the other participant's
	// current full name, resolved at read time. Stored names go stale
	// after profile edits, so none is ever stored.
	if conv.IsDirect() {
		summary.DisplayName = s.peerDisplayName(ctx, userID, participants)
	}

	if last, _, err := s.messages.List(conv.ID, nil, 1, repositories.NewestFirst); err == nil && len(last) > 0 {
		summary.LastMessage = &last[0]
	}

	if me, ok := lo.Find(participants, func(p domain.Participant) bool {
		return p.UserID == userID
	}); ok {
		count, err := s.messages.CountSince(conv.ID, me.LastReadAt, userID)
		if err != nil {
			return ConversationSummary{}, err
		}
		summary.UnreadCount = count
	}
	return summary, nil
}

func (s *ConversationService) peerDisplayName(ctx context.Context, userID string, participants []domain.Participant) string {
	peer, ok := lo.Find(participants, func(p domain.Participant) bool {
		return p.UserID != userID
	})
	if !ok {
		return "Unknown User"
	}
	profile, err := s.directory.Profile(ctx, peer.UserID)
	if err != nil {
		s.log.Warn("Failed to resolve peer profile", "user_id", peer.UserID, "error", err)
		return "Unknown User"
	}
	return profile.FullName
}

func (s *ConversationService) requireConversationAdmin(conversationID uuid.UUID, actorID string) error {
	participants, err := s.convs.Participants(conversationID)
	if err != nil {
		return err
	}
	actor, ok := lo.Find(participants, func(p domain.Participant) bool {
		return p.UserID == actorID
	})
	if !ok {
		return errors.ErrNotAParticipant
	}
	if actor.Role != domain.ParticipantAdmin {
		return fmt.Errorf("user %s is not a conversation admin: %w", actorID, errors.ErrForbidden)
	}
	return nil
}
