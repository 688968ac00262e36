//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"loft-messaging/domain"
)

const (
	msgPrefix      = "msg:"
	msgClockPrefix = "msgclock:"
)

type ListDirection string

const (
	// OldestFirst walks the timeline forward from the cursor.
	OldestFirst ListDirection = "oldest_first"
	// NewestFirst walks backward, the default for chat views.
	NewestFirst ListDirection = "newest_first"
)

type IMessageRepository interface {
	Append(message domain.Message) (domain.Message, error)
	List(conversationID uuid.UUID, cursor *string, limit int, direction ListDirection) ([]domain.Message, *string, error)
	CountSince(conversationID uuid.UUID, since time.Time, excludeSender string) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Type           string    `json:"message_type"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Edited         bool      `json:"edited"`
}

// Append persists a message under a key formatted as
// "msg:{conversation_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Break same-nanosecond ties with the time-ordered (v7) message id,
//     giving every consumer the stable (created_at, id) sort.
//
// A per-conversation clock key is read and written in the same transaction,
// which both lifts a lagging wall clock strictly past the conversation
// clock, and serializes concurrent appends to the same conversation through
// Badger's conflict detection. Lifting to clock+1ns rather than the clock
// itself keeps storage keys strictly increasing per conversation even when
// the wall clock steps backward and a fresh id sorts below the previous
// one, so a cursor taken before the regression can never hide the newer
// message.
func (m *MessageRepository) Append(message domain.Message) (domain.Message, error) {
	clockKey := []byte(msgClockPrefix + message.ConversationID.String())

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		stored := message
		err := m.db.Update(func(txn *badger.Txn) error {
			last, err := readClock(txn, clockKey)
			if err != nil {
				return err
			}
			if stored.CreatedAt.UnixNano() <= last {
				stored.CreatedAt = time.Unix(0, last+1).UTC()
			}
			key := messageKey(stored.ConversationID, stored.CreatedAt, stored.ID)
			data, err := json.Marshal(fromMessage(stored))
			if err != nil {
				return fmt.Errorf("marshal failed: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			return txn.Set(clockKey, []byte(strconv.FormatInt(stored.CreatedAt.UnixNano(), 10)))
		})
		if err == nil {
			return stored, nil
		}
		if stderrors.Is(err, badger.ErrConflict) {
			m.log.Debug("Concurrent append on conversation, retrying",
				"conversation_id", message.ConversationID)
			continue
		}
		return domain.Message{}, err
	}
	return domain.Message{}, fmt.Errorf("append to %s: %w", message.ConversationID, badger.ErrConflict)
}

// List pages through a conversation's messages. The cursor is the opaque
// "{timestamp_padded}:{uuid}" suffix of the last key seen; resuming from it
// can neither skip nor repeat messages under concurrent appends, because
// appends only ever add keys strictly after the conversation's clock.
func (m *MessageRepository) List(conversationID uuid.UUID, cursor *string, limit int, direction ListDirection) ([]domain.Message, *string, error) {
	prefixStr := msgPrefix + conversationID.String() + ":"
	prefix := []byte(prefixStr)

	var raw [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = direction == NewestFirst
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch {
		case cursor != nil:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		case direction == NewestFirst:
			// Seek past the newest possible key, then walk backward.
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = prefix
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			// The cursor names the last message already delivered.
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(val []byte) error {
				raw = append(raw, append([]byte(nil), val...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var disk diskMessage
		if err := json.Unmarshal(b, &disk); err != nil {
			return nil, nil, err
		}
		msg, err := toMessage(disk)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	return messages, &lastKey, nil
}

// CountSince counts messages created strictly after the given instant,
// skipping those sent by excludeSender. Used for unread previews.
func (m *MessageRepository) CountSince(conversationID uuid.UUID, since time.Time, excludeSender string) (int, error) {
	prefixStr := msgPrefix + conversationID.String() + ":"
	prefix := []byte(prefixStr)
	seekKey := []byte(fmt.Sprintf("%s%019d", prefixStr, since.UnixNano()+1))

	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var disk diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			if disk.SenderID == excludeSender {
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}

func messageKey(conversationID uuid.UUID, createdAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, conversationID, createdAt.UnixNano(), id))
}

func readClock(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var last int64
	err = item.Value(func(val []byte) error {
		parsed, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return err
		}
		last = parsed
		return nil
	})
	return last, err
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
		Edited:         msg.Edited,
	}
}

func toMessage(disk diskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	convID, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       disk.SenderID,
		Content:        disk.Content,
		Type:           domain.MessageType(disk.Type),
		CreatedAt:      disk.CreatedAt,
		UpdatedAt:      disk.UpdatedAt,
		Edited:         disk.Edited,
	}, nil
}
