package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loft-messaging/domain"
)

func Test_FindOrCreateDirect_Is_Unique_Per_Pair(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	// When Alice initiates with Bob
	first, created, err := repository.FindOrCreateDirect("alice", "bob", now)
	req.NoError(err)
	req.True(created)
	req.True(first.IsDirect())

	// And Bob initiates with Alice
	second, created, err := repository.FindOrCreateDirect("bob", "alice", now.Add(time.Minute))
	req.NoError(err)
	req.False(created)

	// Then both ends converge on the same conversation
	req.Equal(first.ID, second.ID)

	participants, err := repository.Participants(first.ID)
	req.NoError(err)
	req.Len(participants, 2)
}

func Test_FindOrCreateDirect_Concurrent_Initiations_Converge(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	goroutines := 8
	ids := make([]uuid.UUID, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Both ends of the pair race each other
			userA, userB := "alice", "bob"
			if i%2 == 0 {
				userA, userB = userB, userA
			}
			conv, _, err := repository.FindOrCreateDirect(userA, userB, now)
			require.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		req.Equal(ids[0], id)
	}

	participants, err := repository.Participants(ids[0])
	req.NoError(err)
	req.Len(participants, 2)
}

func Test_CreateGroup_Creator_Is_Conversation_Admin(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	conv, err := repository.CreateGroup("alice", []string{"bob", "carol"}, "Renovations", now)
	req.NoError(err)
	req.Equal(domain.ConversationGroup, conv.Type)
	req.Equal("Renovations", conv.Name)

	participants, err := repository.Participants(conv.ID)
	req.NoError(err)
	req.Len(participants, 3)

	roles := make(map[string]domain.ParticipantRole)
	for _, p := range participants {
		roles[p.UserID] = p.Role
	}
	req.Equal(domain.ParticipantAdmin, roles["alice"])
	req.Equal(domain.ParticipantMember, roles["bob"])
	req.Equal(domain.ParticipantMember, roles["carol"])
}

func Test_AddParticipant_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	conv, err := repository.CreateGroup("alice", []string{"bob"}, "Leases", now)
	req.NoError(err)

	req.NoError(repository.AddParticipant(conv.ID, "carol", domain.ParticipantMember, now))
	req.NoError(repository.AddParticipant(conv.ID, "carol", domain.ParticipantMember, now.Add(time.Hour)))

	participants, err := repository.Participants(conv.ID)
	req.NoError(err)
	req.Len(participants, 3)
}

func Test_RemoveParticipant_Drops_Conversation_From_User_List(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	conv, err := repository.CreateGroup("alice", []string{"bob", "carol"}, "Maintenance", now)
	req.NoError(err)

	before, err := repository.ListForUser("carol")
	req.NoError(err)
	req.Len(before, 1)

	req.NoError(repository.RemoveParticipant(conv.ID, "carol"))

	after, err := repository.ListForUser("carol")
	req.NoError(err)
	req.Empty(after)

	isParticipant, err := repository.IsParticipant(conv.ID, "carol")
	req.NoError(err)
	req.False(isParticipant)

	remaining, err := repository.Participants(conv.ID)
	req.NoError(err)
	req.Len(remaining, 2)
}

func Test_UpdateLastRead_Sets_Participant_Timestamp(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	conv, _, err := repository.FindOrCreateDirect("alice", "bob", now)
	req.NoError(err)

	readAt := now.Add(10 * time.Minute)
	req.NoError(repository.UpdateLastRead(conv.ID, "bob", readAt))

	participants, err := repository.Participants(conv.ID)
	req.NoError(err)
	for _, p := range participants {
		if p.UserID == "bob" {
			req.Equal(readAt, p.LastReadAt.UTC())
		} else {
			req.True(p.LastReadAt.IsZero())
		}
	}
}
