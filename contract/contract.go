//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes bus events. Delivery is decoupled from the mutating
// transaction: a sink observing an event may assume the underlying row is
// durably committed.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks live subscriptions per topic.
type IRegistry interface {
	GetSinksForTopic(topic event.Topic) []EventSink
	Subscribe(subscriberID string, topic event.Topic, sink EventSink)
	Unsubscribe(subscriberID string, topic event.Topic)
}

// IEventBus is the publish half of the real-time bus. Publish is
// fire-and-forget relative to the caller's transaction and must only be
// invoked after commit.
type IEventBus interface {
	Publish(e event.DomainEvent)
}

// IDirectory resolves user ids to profiles and team memberships.
// External collaborator: implementations wrap lookup failures in
// errors.ErrDirectoryUnavailable.
type IDirectory interface {
	Profile(ctx context.Context, userID string) (domain.Profile, error)
	Profiles(ctx context.Context) ([]domain.Profile, error)
	Teams(ctx context.Context, userID string) ([]domain.TeamID, error)
	TeamMembers(ctx context.Context, teamID domain.TeamID) ([]string, error)
}
