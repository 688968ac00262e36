package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/errors"
	"loft-messaging/repositories"
)

type notificationFixture struct {
	service       *NotificationService
	notifications repositories.INotificationRepository
	convs         repositories.IConversationRepository
	directory     *fakeDirectory
	bus           *recordingBus
}

func newNotificationFixture(t *testing.T) notificationFixture {
	t.Helper()
	db := openTestDB(t)
	log := slog.Default()

	directory := newFakeDirectory(
		domain.Profile{ID: "alice", FullName: "Alice Martin", Role: domain.RoleAdmin},
		domain.Profile{ID: "bob", FullName: "Bob Sagan", Role: domain.RoleMember},
		domain.Profile{ID: "carol", FullName: "Carol Diaz", Role: domain.RoleMember},
	)
	bus := &recordingBus{}
	notifications := repositories.NewNotificationRepository(db, log)
	convs := repositories.NewConversationRepository(db, log)
	service := NewNotificationService(notifications, convs, directory, bus, log)

	return notificationFixture{
		service:       service,
		notifications: notifications,
		convs:         convs,
		directory:     directory,
		bus:           bus,
	}
}

func newGroupMessage(t *testing.T, f notificationFixture, sender, content string) domain.Message {
	t.Helper()
	conv, err := f.convs.CreateGroup("alice", []string{"bob", "carol"}, "Building A", time.Now().UTC())
	require.NoError(t, err)
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return domain.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       sender,
		Content:        content,
		Type:           domain.MessageText,
		CreatedAt:      time.Now().UTC(),
	}
}

func Test_OnMessageInserted_Notifies_Everyone_But_The_Sender(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	message := newGroupMessage(t, f, "alice", "Water shut-off tomorrow morning")

	req.NoError(f.service.OnMessageInserted(context.Background(), message))

	for _, recipient := range []string{"bob", "carol"} {
		rows, err := f.notifications.ListForUser(recipient, false, 0)
		req.NoError(err)
		req.Len(rows, 1)
		req.Equal("New message from Alice Martin", rows[0].Title)
		req.Equal("/conversations/"+message.ConversationID.String(), rows[0].Link)
		req.Equal(message.ID, rows[0].SourceMessageID)
	}

	senderRows, err := f.notifications.ListForUser("alice", false, 0)
	req.NoError(err)
	req.Empty(senderRows)

	inserted := f.bus.ofType(func(e event.DomainEvent) bool {
		_, ok := e.(event.NotificationInserted)
		return ok
	})
	req.Len(inserted, 2)
}

func Test_OnMessageInserted_Redelivery_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	message := newGroupMessage(t, f, "alice", "Rent reminder")

	ctx := context.Background()
	req.NoError(f.service.OnMessageInserted(ctx, message))
	req.NoError(f.service.OnMessageInserted(ctx, message))

	rows, err := f.notifications.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(rows, 1)

	// No second event either, downstream counters stay accurate
	inserted := f.bus.ofType(func(e event.DomainEvent) bool {
		_, ok := e.(event.NotificationInserted)
		return ok
	})
	req.Len(inserted, 2)
}

func Test_OnMessageInserted_Truncates_The_Preview(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	long := strings.Repeat("a", 80)
	message := newGroupMessage(t, f, "alice", long)

	req.NoError(f.service.OnMessageInserted(context.Background(), message))

	rows, err := f.notifications.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal(strings.Repeat("a", 50)+"...", rows[0].Message)
}

func Test_OnMessageInserted_Unknown_Sender_Falls_Back(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	message := newGroupMessage(t, f, "alice", "hello")
	delete(f.directory.profiles, "alice")

	req.NoError(f.service.OnMessageInserted(context.Background(), message))

	rows, err := f.notifications.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("New message from Unknown User", rows[0].Title)
}

func Test_MarkRead_Publishes_The_Transition_Once(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	ctx := context.Background()

	req.NoError(f.service.NotifyUsers(ctx, []string{"bob"}, "Lease expiring", "Unit 4B", domain.NotificationWarning, "/leases/4b"))
	rows, err := f.notifications.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(rows, 1)

	updated, err := f.service.MarkRead(ctx, "bob", rows[0].ID)
	req.NoError(err)
	req.True(updated.IsRead)

	// Marking again changes nothing and publishes nothing
	_, err = f.service.MarkRead(ctx, "bob", rows[0].ID)
	req.NoError(err)

	transitions := f.bus.ofType(func(e event.DomainEvent) bool {
		_, ok := e.(event.NotificationUpdated)
		return ok
	})
	req.Len(transitions, 1)
	req.False(transitions[0].(event.NotificationUpdated).WasRead)
}

func Test_MarkRead_Foreign_Notification_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	ctx := context.Background()

	req.NoError(f.service.NotifyUsers(ctx, []string{"bob"}, "Hello", "body", domain.NotificationInfo, ""))
	rows, err := f.notifications.ListForUser("bob", false, 0)
	req.NoError(err)

	_, err = f.service.MarkRead(ctx, "carol", rows[0].ID)
	req.ErrorIs(err, errors.ErrForbidden)
}

func Test_MarkAllRead_Publishes_One_Transition_Per_Row(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture(t)
	ctx := context.Background()

	req.NoError(f.service.NotifyUsers(ctx, []string{"bob", "bob", "bob"}, "Update", "body", domain.NotificationInfo, ""))

	count, err := f.service.MarkAllRead(ctx, "bob")
	req.NoError(err)
	req.Equal(3, count)

	count, err = f.service.MarkAllRead(ctx, "bob")
	req.NoError(err)
	req.Zero(count)

	transitions := f.bus.ofType(func(e event.DomainEvent) bool {
		_, ok := e.(event.NotificationUpdated)
		return ok
	})
	req.Len(transitions, 3)
}
