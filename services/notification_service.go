//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loft-messaging/contract"
	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/repositories"
)

const previewLength = 50

type INotificationService interface {
	OnMessageInserted(ctx context.Context, message domain.Message) error
	NotifyUsers(ctx context.Context, userIDs []string, title, body string, notifType domain.NotificationType, link string) error
	MarkRead(ctx context.Context, userID string, notificationID uuid.UUID) (domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type NotificationService struct {
	notifications repositories.INotificationRepository
	convs         repositories.IConversationRepository
	directory     contract.IDirectory
	bus           contract.IEventBus
	log           *slog.Logger
}

func NewNotificationService(
	notifications repositories.INotificationRepository,
	convs repositories.IConversationRepository,
	directory contract.IDirectory,
	bus contract.IEventBus,
	log *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		convs:         convs,
		directory:     directory,
		bus:           bus,
		log:           log,
	}
}

// OnMessageInserted fans a message out to every participant except the
// sender. Creation is idempotent per (message, recipient): redelivery of
// the same event inserts nothing and publishes nothing, so downstream
// counters never double-count. A recipient that cannot be notified is
// logged and skipped rather than failing the whole fan-out.
func (s *NotificationService) OnMessageInserted(ctx context.Context, message domain.Message) error {
	participants, err := s.convs.Participants(message.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load participants of %s: %w", message.ConversationID, err)
	}

	senderName := s.senderName(ctx, message.SenderID)
	title := fmt.Sprintf("New message from %s", senderName)
	body := preview(message.Content)
	link := fmt.Sprintf("/conversations/%s", message.ConversationID)

	var firstErr error
	for _, participant := range participants {
		if participant.UserID == message.SenderID {
			continue
		}
		notification := domain.Notification{
			ID:              uuid.New(),
			UserID:          participant.UserID,
			Title:           title,
			Message:         body,
			Type:            domain.NotificationInfo,
			Link:            link,
			CreatedAt:       time.Now().UTC(),
			SourceMessageID: message.ID,
		}
		stored, created, err := s.notifications.Create(notification)
		if err != nil {
			s.log.Error("failed to create notification",
				slog.String("user_id", participant.UserID),
				slog.String("message_id", message.ID.String()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !created {
			continue
		}
		s.bus.Publish(event.NotificationInserted{Notification: stored})
	}
	return firstErr
}

// NotifyUsers inserts one notification per recipient outside the message
// fan-out path, e.g. maintenance or lease announcements pushed by an
// admin backend.
func (s *NotificationService) NotifyUsers(ctx context.Context, userIDs []string, title, body string, notifType domain.NotificationType, link string) error {
	now := time.Now().UTC()
	for _, userID := range userIDs {
		notification := domain.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Title:     title,
			Message:   body,
			Type:      notifType,
			Link:      link,
			CreatedAt: now,
		}
		stored, created, err := s.notifications.Create(notification)
		if err != nil {
			return fmt.Errorf("failed to notify %s: %w", userID, err)
		}
		if created {
			s.bus.Publish(event.NotificationInserted{Notification: stored})
		}
	}
	return nil
}

// MarkRead flips one notification to read. The update event carries the
// previous read state so counters decrement once per actual transition.
func (s *NotificationService) MarkRead(_ context.Context, userID string, notificationID uuid.UUID) (domain.Notification, error) {
	notification, changed, err := s.notifications.MarkRead(notificationID, userID)
	if err != nil {
		return domain.Notification{}, err
	}
	if changed {
		s.bus.Publish(event.NotificationUpdated{Notification: notification, WasRead: false})
	}
	return notification, nil
}

// MarkAllRead transitions every unread notification of userID and returns
// how many rows changed.
func (s *NotificationService) MarkAllRead(_ context.Context, userID string) (int, error) {
	transitioned, err := s.notifications.MarkAllRead(userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, notification := range transitioned {
		s.bus.Publish(event.NotificationUpdated{Notification: notification, WasRead: false})
	}
	return len(transitioned), nil
}

func (s *NotificationService) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return s.notifications.ListForUser(userID, unreadOnly, limit)
}

// CountUnread is the authoritative recount from storage, not the cached
// counter figure.
func (s *NotificationService) CountUnread(_ context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(userID)
}

// senderName falls back to a placeholder when the directory cannot resolve
// the sender: notifying late beats blocking the fan-out on a directory
// outage.
func (s *NotificationService) senderName(ctx context.Context, senderID string) string {
	profile, err := s.directory.Profile(ctx, senderID)
	if err != nil {
		s.log.Warn("failed to resolve sender profile",
			slog.String("sender_id", senderID),
			slog.String("error", err.Error()))
		return "Unknown User"
	}
	return profile.FullName
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
