package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"loft-messaging/contract"
	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/mocks"
)

func newInsertedEvent() event.MessageInserted {
	id, _ := uuid.NewV7()
	return event.MessageInserted{Message: domain.Message{
		ID:             id,
		ConversationID: uuid.New(),
		SenderID:       "alice",
		Content:        "hello",
		Type:           domain.MessageText,
		CreatedAt:      time.Now().UTC(),
	}}
}

func TestEventFanout_Delivers_To_Permanent_And_Topic_Sinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evt := newInsertedEvent()

	permanent := mocks.NewMockEventSink(ctrl)
	subscribed := mocks.NewMockEventSink(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)

	permanent.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	subscribed.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	registry.EXPECT().GetSinksForTopic(evt.Topic()).
		Return([]contract.EventSink{subscribed}).Times(1)

	fanout := NewEventFanout(
		slog.Default(),
		[]contract.EventSink{permanent},
		registry,
		make(chan event.DomainEvent, 1),
		make(chan event.DomainEvent, 1),
		time.Second,
	)

	fanout.Fanout(context.Background(), evt)
}

func TestEventFanout_Sink_Error_Does_Not_Stop_Delivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evt := newInsertedEvent()

	failing := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)

	failing.EXPECT().Consume(gomock.Any(), evt).Return(fmt.Errorf("sink broken")).Times(1)
	healthy.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	registry.EXPECT().GetSinksForTopic(evt.Topic()).Return(nil).Times(1)

	fanout := NewEventFanout(
		slog.Default(),
		[]contract.EventSink{failing, healthy},
		registry,
		make(chan event.DomainEvent, 1),
		make(chan event.DomainEvent, 1),
		time.Second,
	)

	fanout.Fanout(context.Background(), evt)
}

func TestEventFanout_Run_Drains_Until_Cancel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evt := newInsertedEvent()
	events := make(chan event.DomainEvent, 4)
	telemetry := make(chan event.DomainEvent, 4)

	permanent := mocks.NewMockEventSink(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	delivered := make(chan struct{}, 4)

	permanent.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(context.Context, event.DomainEvent) error {
			delivered <- struct{}{}
			return nil
		}).Times(2)
	registry.EXPECT().GetSinksForTopic(evt.Topic()).Return(nil).Times(2)

	fanout := NewEventFanout(slog.Default(), []contract.EventSink{permanent}, registry, events, telemetry, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		req.NoError(fanout.Run(ctx))
		close(done)
	}()

	events <- evt
	events <- evt

	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			req.Fail("event not delivered")
		}
	}
	// The telemetry copy is best effort but has room here
	req.Eventually(func() bool { return len(telemetry) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("fan-out did not stop on cancel")
	}
}
