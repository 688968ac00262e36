package projection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
)

func timelineMessage(content string, at time.Time) domain.Message {
	id, _ := uuid.NewV7()
	return domain.Message{
		ID:             id,
		ConversationID: uuid.New(),
		SenderID:       "alice",
		Content:        content,
		Type:           domain.MessageText,
		CreatedAt:      at,
	}
}

func TestTimeline_Consume_Keeps_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()
	at := time.Now().UTC()

	first := timelineMessage("Hello Bob", at)
	second := timelineMessage("Hi Alice", at.Add(time.Second))

	req.NoError(timeline.Consume(ctx, event.MessageInserted{Message: first}))
	req.NoError(timeline.Consume(ctx, event.MessageInserted{Message: second}))

	req.Equal(2, timeline.Len())
	req.Equal(first.ID, timeline.Messages()[0].ID)
	req.Equal(second.ID, timeline.Messages()[1].ID)
}

func TestTimeline_Duplicate_Insert_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	msg := timelineMessage("only once", time.Now().UTC())

	req.True(timeline.Insert(msg))
	req.False(timeline.Insert(msg))
	req.Equal(1, timeline.Len())
}

func TestTimeline_Late_Arrival_Is_Placed_In_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	at := time.Now().UTC()

	oldest := timelineMessage("first", at)
	middle := timelineMessage("second", at.Add(time.Second))
	newest := timelineMessage("third", at.Add(2*time.Second))

	// The middle message arrives last, as after a reconnect overlap
	req.True(timeline.Insert(oldest))
	req.True(timeline.Insert(newest))
	req.True(timeline.Insert(middle))

	messages := timeline.Messages()
	req.Equal(oldest.ID, messages[0].ID)
	req.Equal(middle.ID, messages[1].ID)
	req.Equal(newest.ID, messages[2].ID)
}

func TestTimeline_Same_Timestamp_Tie_Broken_By_ID(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	at := time.Now().UTC()

	// v7 ids are time ordered, so creation order decides the tie
	first := timelineMessage("tie a", at)
	second := timelineMessage("tie b", at)

	req.True(timeline.Insert(second))
	req.True(timeline.Insert(first))

	messages := timeline.Messages()
	req.Equal(first.ID, messages[0].ID)
	req.Equal(second.ID, messages[1].ID)
}
