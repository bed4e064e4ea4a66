//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"deal-lab/domain"
	"deal-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
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

// EventSink is one live connection's outbound channel.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the presence registry: who holds a live connection and
// which transaction rooms they joined. At most one sink per user;
// Disconnect is a no-op unless the given sink is the registered one.
type IRegistry interface {
	Authenticate(userID string, sink EventSink)
	Disconnect(userID string, sink EventSink)
	IsOnline(userID string) bool
	ListOnline() []string
	JoinRoom(userID string, roomID domain.RoomID)
	LeaveRoom(userID string, roomID domain.RoomID)
	SinksForRoom(roomID domain.RoomID) []EventSink
	SinkForUser(userID string) (EventSink, bool)
}

// IEventBus accepts domain events for fan-out. Publish never blocks the
// caller: delivery is best-effort, at most once.
type IEventBus interface {
	Publish(e event.DomainEvent)
}

// IDispatcher accepts typed inbound client intents from the real-time
// channel, decoupling transport framing from business logic.
type IDispatcher interface {
	Dispatch(cmd domain.Command)
}

// INotifier is the external notification dispatcher (email/SMS/push).
// Fire-and-forget: implementations log failures and never return them.
type INotifier interface {
	Notify(userID, kind string, payload map[string]any)
}

// IAttachmentStore is the external file store.
type IAttachmentStore interface {
	Save(fileName string, content []byte) (domain.Attachment, error)
	Delete(url string) error
}

// IAuthorizer answers participant and elevated-privilege questions for
// a caller identity.
type IAuthorizer interface {
	IsParticipant(userID string, t domain.Transaction) bool
	IsElevated(userID string) bool
}
