//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
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
	convPrefix     = "conv:"
	partPrefix     = "part:"
	userConvPrefix = "userconv:"
	directPrefix   = "direct:"

	// Badger aborts one of two transactions racing on the same keys.
	// A handful of retries is plenty; the loser of the direct-pair race
	// finds the winning row on the next attempt.
	maxTxnRetries = 5
)

type IConversationRepository interface {
	FindOrCreateDirect(userA, userB string, now time.Time) (domain.Conversation, bool, error)
	CreateGroup(creatorID string, memberIDs []string, name string, now time.Time) (domain.Conversation, error)
	Get(conversationID uuid.UUID) (domain.Conversation, error)
	Participants(conversationID uuid.UUID) ([]domain.Participant, error)
	IsParticipant(conversationID uuid.UUID, userID string) (bool, error)
	AddParticipant(conversationID uuid.UUID, userID string, role domain.ParticipantRole, now time.Time) error
	RemoveParticipant(conversationID uuid.UUID, userID string) error
	ListForUser(userID string) ([]domain.Conversation, error)
	TouchUpdatedAt(conversationID uuid.UUID, now time.Time) error
	UpdateLastRead(conversationID uuid.UUID, userID string, now time.Time) error
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

type diskConversation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type diskParticipant struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// FindOrCreateDirect returns the unique direct conversation for the
// unordered pair {userA, userB}, creating it when absent. The boolean
// reports whether a new conversation was created.
//
// Uniqueness is enforced by the "direct:{lo}:{hi}" key written in the same
// transaction as the conversation and both participant rows. Two concurrent
// initiations from both ends of the pair make Badger abort one transaction
// with ErrConflict; the loser retries, reads the winning key, and returns
// the same conversation. The race is never surfaced to the caller.
func (r *ConversationRepository) FindOrCreateDirect(userA, userB string, now time.Time) (domain.Conversation, bool, error) {
	lo, hi := domain.DirectPairKey(userA, userB)
	directKey := []byte(fmt.Sprintf("%s%s:%s", directPrefix, lo, hi))

	var conv domain.Conversation
	var created bool

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		created = false
		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(directKey)
			if err == nil {
				var existingID string
				if err := item.Value(func(val []byte) error {
					existingID = string(val)
					return nil
				}); err != nil {
					return err
				}
				conv, err = getConversation(txn, existingID)
				return err
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			conv = domain.Conversation{
				ID:        uuid.New(),
				Type:      domain.ConversationDirect,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := putConversation(txn, conv); err != nil {
				return err
			}
			for _, userID := range []string{userA, userB} {
				p := domain.Participant{
					ConversationID: conv.ID,
					UserID:         userID,
					Role:           domain.ParticipantMember,
					JoinedAt:       now,
				}
				if err := putParticipant(txn, p); err != nil {
					return err
				}
			}
			created = true
			return txn.Set(directKey, []byte(conv.ID.String()))
		})
		if err == nil {
			return conv, created, nil
		}
		if stderrors.Is(err, badger.ErrConflict) {
			r.log.Debug("Direct conversation race lost, re-fetching winner",
				"user_a", userA, "user_b", userB)
			continue
		}
		return domain.Conversation{}, false, err
	}
	return domain.Conversation{}, false, errors.ErrDuplicateConversation
}

// CreateGroup creates a group conversation with the creator as
// conversation-admin. Membership validation (non-empty member set, ACL)
// belongs to the service layer.
func (r *ConversationRepository) CreateGroup(creatorID string, memberIDs []string, name string, now time.Time) (domain.Conversation, error) {
	conv := domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationGroup,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := putConversation(txn, conv); err != nil {
			return err
		}
		creator := domain.Participant{
			ConversationID: conv.ID,
			UserID:         creatorID,
			Role:           domain.ParticipantAdmin,
			JoinedAt:       now,
		}
		if err := putParticipant(txn, creator); err != nil {
			return err
		}
		for _, userID := range memberIDs {
			if userID == creatorID {
				continue
			}
			member := domain.Participant{
				ConversationID: conv.ID,
				UserID:         userID,
				Role:           domain.ParticipantMember,
				JoinedAt:       now,
			}
			if err := putParticipant(txn, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r *ConversationRepository) Get(conversationID uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, conversationID.String())
		return err
	})
	return conv, err
}

func (r *ConversationRepository) Participants(conversationID uuid.UUID) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(partPrefix + conversationID.String() + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskParticipant
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			p, err := toParticipant(disk)
			if err != nil {
				return err
			}
			participants = append(participants, p)
		}
		return nil
	})
	return participants, err
}

func (r *ConversationRepository) IsParticipant(conversationID uuid.UUID, userID string) (bool, error) {
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(participantKey(conversationID, userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// AddParticipant is idempotent: adding an existing participant keeps the
// original row so the at-most-once-per-conversation invariant holds.
func (r *ConversationRepository) AddParticipant(conversationID uuid.UUID, userID string, role domain.ParticipantRole, now time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(participantKey(conversationID, userID)); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return putParticipant(txn, domain.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
		})
	})
}

func (r *ConversationRepository) RemoveParticipant(conversationID uuid.UUID, userID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(participantKey(conversationID, userID)); err != nil {
			return err
		}
		return txn.Delete([]byte(fmt.Sprintf("%s%s:%s", userConvPrefix, userID, conversationID)))
	})
}

func (r *ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		prefix := []byte(userConvPrefix + userID + ":")
		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		it.Close()
		for _, id := range ids {
			conv, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	return conversations, err
}

func (r *ConversationRepository) TouchUpdatedAt(conversationID uuid.UUID, now time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, conversationID.String())
		if err != nil {
			return err
		}
		conv.UpdatedAt = now
		return putConversation(txn, conv)
	})
}

func (r *ConversationRepository) UpdateLastRead(conversationID uuid.UUID, userID string, now time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := participantKey(conversationID, userID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("participant %s in %s: %w", userID, conversationID, errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		var disk diskParticipant
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		disk.LastReadAt = now
		data, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func participantKey(conversationID uuid.UUID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", partPrefix, conversationID, userID))
}

func getConversation(txn *badger.Txn, id string) (domain.Conversation, error) {
	item, err := txn.Get([]byte(convPrefix + id))
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk)
}

func putConversation(txn *badger.Txn, conv domain.Conversation) error {
	data, err := json.Marshal(diskConversation{
		ID:        conv.ID.String(),
		Type:      string(conv.Type),
		Name:      conv.Name,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set([]byte(convPrefix+conv.ID.String()), data)
}

// putParticipant writes the participant row and the per-user index entry
// used by ListForUser.
func putParticipant(txn *badger.Txn, p domain.Participant) error {
	data, err := json.Marshal(diskParticipant{
		ConversationID: p.ConversationID.String(),
		UserID:         p.UserID,
		Role:           string(p.Role),
		JoinedAt:       p.JoinedAt,
		LastReadAt:     p.LastReadAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	if err := txn.Set(participantKey(p.ConversationID, p.UserID), data); err != nil {
		return err
	}
	return txn.Set([]byte(fmt.Sprintf("%s%s:%s", userConvPrefix, p.UserID, p.ConversationID)), nil)
}

func toConversation(disk diskConversation) (domain.Conversation, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:        id,
		Type:      domain.ConversationType(disk.Type),
		Name:      disk.Name,
		CreatedAt: disk.CreatedAt,
		UpdatedAt: disk.UpdatedAt,
	}, nil
}

func toParticipant(disk diskParticipant) (domain.Participant, error) {
	id, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{
		ConversationID: id,
		UserID:         disk.UserID,
		Role:           domain.ParticipantRole(disk.Role),
		JoinedAt:       disk.JoinedAt,
		LastReadAt:     disk.LastReadAt,
	}, nil
}
