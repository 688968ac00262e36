//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"loft-messaging/domain"
	"loft-messaging/errors"
)

const (
	notifPrefix      = "notif:"
	notifIndexPrefix = "notifid:"
	notifDedupPrefix = "notifdedup:"
)

type INotificationRepository interface {
	Create(notification domain.Notification) (domain.Notification, bool, error)
	MarkRead(notificationID uuid.UUID, userID string) (domain.Notification, bool, error)
	MarkAllRead(userID string, now time.Time) ([]domain.Notification, error)
	ListForUser(userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	CountUnread(userID string) (int, error)
	UnreadIDs(userID string) ([]uuid.UUID, error)
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log}
}

type diskNotification struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	Link            string    `json:"link,omitempty"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
}

// Create inserts a notification row. For message-driven notifications the
// "notifdedup:{message_id}:{user_id}" key is written in the same
// transaction, so redelivering the same message-insert event can never
// produce a second row for the same recipient. The boolean reports whether
// a row was actually inserted; on a dedup hit the existing row is returned.
func (r *NotificationRepository) Create(notification domain.Notification) (domain.Notification, bool, error) {
	var result domain.Notification
	var created bool

	for {
		result = notification
		created = false
		err := r.db.Update(func(txn *badger.Txn) error {
			var dedupKey []byte
			if notification.SourceMessageID != uuid.Nil {
				dedupKey = []byte(fmt.Sprintf("%s%s:%s",
					notifDedupPrefix, notification.SourceMessageID, notification.UserID))
				item, err := txn.Get(dedupKey)
				if err == nil {
					var existingID string
					if err := item.Value(func(val []byte) error {
						existingID = string(val)
						return nil
					}); err != nil {
						return err
					}
					existing, err := getNotification(txn, existingID)
					if err != nil {
						return err
					}
					result = existing
					return nil
				}
				if err != badger.ErrKeyNotFound {
					return err
				}
			}

			if err := putNotification(txn, notification); err != nil {
				return err
			}
			if dedupKey != nil {
				if err := txn.Set(dedupKey, []byte(notification.ID.String())); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
		if err == nil {
			return result, created, nil
		}
		if stderrors.Is(err, badger.ErrConflict) {
			continue
		}
		return domain.Notification{}, false, err
	}
}

// MarkRead flips the read flag. Marking an already-read notification is a
// no-op, not an error; the boolean reports whether a transition happened.
// A notification owned by someone else yields ErrForbidden.
func (r *NotificationRepository) MarkRead(notificationID uuid.UUID, userID string) (domain.Notification, bool, error) {
	var result domain.Notification
	var changed bool

	err := r.db.Update(func(txn *badger.Txn) error {
		changed = false
		notif, err := getNotification(txn, notificationID.String())
		if err != nil {
			return err
		}
		if notif.UserID != userID {
			return fmt.Errorf("notification %s does not belong to %s: %w",
				notificationID, userID, errors.ErrForbidden)
		}
		result = notif
		if notif.IsRead {
			return nil
		}
		result.IsRead = true
		changed = true
		return putNotification(txn, result)
	})
	if err != nil {
		return domain.Notification{}, false, err
	}
	return result, changed, nil
}

// MarkAllRead transitions every unread notification owned by userID and
// returns the transitioned rows, oldest first. Idempotent: a second call
// returns nothing.
func (r *NotificationRepository) MarkAllRead(userID string, _ time.Time) ([]domain.Notification, error) {
	var transitioned []domain.Notification
	err := r.db.Update(func(txn *badger.Txn) error {
		transitioned = nil
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(notifPrefix + userID + ":")
		var unread []domain.Notification
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskNotification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				it.Close()
				return err
			}
			if disk.IsRead {
				continue
			}
			notif, err := toNotification(disk)
			if err != nil {
				it.Close()
				return err
			}
			unread = append(unread, notif)
		}
		it.Close()

		for _, notif := range unread {
			notif.IsRead = true
			if err := putNotification(txn, notif); err != nil {
				return err
			}
			transitioned = append(transitioned, notif)
		}
		return nil
	})
	return transitioned, err
}

// ListForUser returns notifications newest first.
func (r *NotificationRepository) ListForUser(userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()
		prefixStr := notifPrefix + userID + ":"
		prefix := []byte(prefixStr)
		seekKey := append([]byte(prefixStr), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(notifications) == limit {
				break
			}
			var disk diskNotification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			if unreadOnly && disk.IsRead {
				continue
			}
			notif, err := toNotification(disk)
			if err != nil {
				return err
			}
			notifications = append(notifications, notif)
		}
		return nil
	})
	return notifications, err
}

// CountUnread recounts unread rows from disk. This is the authoritative
// figure the in-memory counter reconciles against.
func (r *NotificationRepository) CountUnread(userID string) (int, error) {
	count := 0
	err := r.forEachUnread(userID, func(domain.Notification) {
		count++
	})
	return count, err
}

// UnreadIDs lists the ids of unread rows, used to rebuild counter state.
func (r *NotificationRepository) UnreadIDs(userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.forEachUnread(userID, func(n domain.Notification) {
		ids = append(ids, n.ID)
	})
	return ids, err
}

func (r *NotificationRepository) forEachUnread(userID string, fn func(domain.Notification)) error {
	return r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(notifPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskNotification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			if disk.IsRead {
				continue
			}
			notif, err := toNotification(disk)
			if err != nil {
				return err
			}
			fn(notif)
		}
		return nil
	})
}

func notificationKey(n domain.Notification) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", notifPrefix, n.UserID, n.CreatedAt.UnixNano(), n.ID))
}

// putNotification writes the row plus the "notifid:{id}" index resolving an
// id to its primary key, needed by MarkRead which only receives the id.
func putNotification(txn *badger.Txn, n domain.Notification) error {
	disk := diskNotification{
		ID:        n.ID.String(),
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.SourceMessageID != uuid.Nil {
		disk.SourceMessageID = n.SourceMessageID.String()
	}
	data, err := json.Marshal(disk)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	key := notificationKey(n)
	if err := txn.Set(key, data); err != nil {
		return err
	}
	return txn.Set([]byte(notifIndexPrefix+n.ID.String()), key)
}

func getNotification(txn *badger.Txn, id string) (domain.Notification, error) {
	indexItem, err := txn.Get([]byte(notifIndexPrefix + id))
	if err == badger.ErrKeyNotFound {
		return domain.Notification{}, fmt.Errorf("notification %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Notification{}, err
	}
	var key []byte
	if err := indexItem.Value(func(val []byte) error {
		key = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return domain.Notification{}, err
	}
	item, err := txn.Get(key)
	if err != nil {
		return domain.Notification{}, err
	}
	var disk diskNotification
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	}); err != nil {
		return domain.Notification{}, err
	}
	return toNotification(disk)
}

func toNotification(disk diskNotification) (domain.Notification, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	n := domain.Notification{
		ID:        id,
		UserID:    disk.UserID,
		Title:     disk.Title,
		Message:   disk.Message,
		Type:      domain.NotificationType(disk.Type),
		Link:      disk.Link,
		IsRead:    disk.IsRead,
		CreatedAt: disk.CreatedAt,
	}
	if disk.SourceMessageID != "" {
		sourceID, err := uuid.Parse(disk.SourceMessageID)
		if err != nil {
			return domain.Notification{}, err
		}
		n.SourceMessageID = sourceID
	}
	return n, nil
}
