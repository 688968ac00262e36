package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loft-messaging/domain"
	"loft-messaging/errors"
)

func newTestNotification(userID string, sourceMessageID uuid.UUID, at time.Time) domain.Notification {
	return domain.Notification{
		ID:              uuid.New(),
		UserID:          userID,
		Title:           "New message from Alice",
		Message:         "Hello",
		Type:            domain.NotificationInfo,
		Link:            "/conversations/42",
		CreatedAt:       at,
		SourceMessageID: sourceMessageID,
	}
}

func Test_Create_Deduplicates_Per_Message_And_Recipient(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())
	messageID, _ := uuid.NewV7()
	at := time.Now().UTC()

	first, created, err := repository.Create(newTestNotification("bob", messageID, at))
	req.NoError(err)
	req.True(created)

	// Redelivering the same message insert must not produce a second row
	second, created, err := repository.Create(newTestNotification("bob", messageID, at.Add(time.Second)))
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)

	// The same message still notifies a different recipient
	_, created, err = repository.Create(newTestNotification("carol", messageID, at))
	req.NoError(err)
	req.True(created)

	bobRows, err := repository.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(bobRows, 1)
}

func Test_Create_Without_Source_Message_Never_Deduplicates(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	_, created, err := repository.Create(newTestNotification("bob", uuid.Nil, at))
	req.NoError(err)
	req.True(created)
	_, created, err = repository.Create(newTestNotification("bob", uuid.Nil, at.Add(time.Second)))
	req.NoError(err)
	req.True(created)

	rows, err := repository.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(rows, 2)
}

func Test_MarkRead_Foreign_Notification_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())

	notif, _, err := repository.Create(newTestNotification("bob", uuid.Nil, time.Now().UTC()))
	req.NoError(err)

	_, _, err = repository.MarkRead(notif.ID, "mallory")
	req.ErrorIs(err, errors.ErrForbidden)

	// The row is untouched
	count, err := repository.CountUnread("bob")
	req.NoError(err)
	req.Equal(1, count)
}

func Test_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())

	notif, _, err := repository.Create(newTestNotification("bob", uuid.Nil, time.Now().UTC()))
	req.NoError(err)

	updated, changed, err := repository.MarkRead(notif.ID, "bob")
	req.NoError(err)
	req.True(changed)
	req.True(updated.IsRead)

	_, changed, err = repository.MarkRead(notif.ID, "bob")
	req.NoError(err)
	req.False(changed)
}

func Test_MarkAllRead_Transitions_Each_Row_Once(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, _, err := repository.Create(newTestNotification("bob", uuid.Nil, at.Add(time.Duration(i)*time.Second)))
		req.NoError(err)
	}
	notif, _, err := repository.Create(newTestNotification("bob", uuid.Nil, at.Add(time.Minute)))
	req.NoError(err)
	_, _, err = repository.MarkRead(notif.ID, "bob")
	req.NoError(err)

	transitioned, err := repository.MarkAllRead("bob", time.Now().UTC())
	req.NoError(err)
	req.Len(transitioned, 3)

	again, err := repository.MarkAllRead("bob", time.Now().UTC())
	req.NoError(err)
	req.Empty(again)

	count, err := repository.CountUnread("bob")
	req.NoError(err)
	req.Zero(count)
}

func Test_ListForUser_Newest_First_And_Unread_Filter(t *testing.T) {
	req := require.New(t)
	repository := NewNotificationRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		notif, _, err := repository.Create(newTestNotification("bob", uuid.Nil, at.Add(time.Duration(i)*time.Second)))
		req.NoError(err)
		ids = append(ids, notif.ID)
	}
	_, _, err := repository.MarkRead(ids[1], "bob")
	req.NoError(err)

	all, err := repository.ListForUser("bob", false, 0)
	req.NoError(err)
	req.Len(all, 3)
	req.Equal(ids[2], all[0].ID)
	req.Equal(ids[0], all[2].ID)

	unread, err := repository.ListForUser("bob", true, 0)
	req.NoError(err)
	req.Len(unread, 2)

	unreadIDs, err := repository.UnreadIDs("bob")
	req.NoError(err)
	req.ElementsMatch([]uuid.UUID{ids[0], ids[2]}, unreadIDs)
}
