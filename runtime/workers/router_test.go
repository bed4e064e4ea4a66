package workers_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"deal-lab/contract"
	"deal-lab/domain"
	"deal-lab/domain/event"
	"deal-lab/runtime"
	"deal-lab/runtime/workers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events chan event.DomainEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan event.DomainEvent, 16)}
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.events <- e
	return nil
}

func (s *recordingSink) received(req *require.Assertions) event.DomainEvent {
	select {
	case e := <-s.events:
		return e
	case <-time.After(time.Second):
		req.FailNow("no event delivered in time")
		return nil
	}
}

func (s *recordingSink) silent(req *require.Assertions) {
	select {
	case e := <-s.events:
		req.Failf("unexpected delivery", "got %T", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func newRouterUnderTest(t *testing.T, registry contract.IRegistry) chan event.DomainEvent {
	t.Helper()
	events := make(chan event.DomainEvent, 16)
	worker := workers.NewRouterWorker(slog.Default(), registry, events, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = worker.Run(ctx) }()
	return events
}

func Test_Router_Transaction_Message_Reaches_Room_Only(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()
	transactionID := uuid.New()

	// Given bob is in the transaction room and clara is online elsewhere
	bob := newRecordingSink()
	clara := newRecordingSink()
	registry.Authenticate("bob", bob)
	registry.Authenticate("clara", clara)
	registry.JoinRoom("bob", domain.Room(transactionID))

	events := newRouterUnderTest(t, registry)

	// When a transaction-addressed message event is routed
	events <- event.MessageCreated{
		MessageID:     uuid.New(),
		TransactionID: &transactionID,
		SenderID:      "alice",
		Content:       "new offer incoming",
		At:            time.Now(),
	}

	// Then the room member receives it and the outsider does not
	delivered := bob.received(req)
	req.IsType(event.MessageCreated{}, delivered)
	clara.silent(req)
}

func Test_Router_Direct_Message_Echoes_To_Sender(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()

	alice := newRecordingSink()
	bob := newRecordingSink()
	registry.Authenticate("alice", alice)
	registry.Authenticate("bob", bob)

	events := newRouterUnderTest(t, registry)

	// When alice sends bob a direct message
	events <- event.MessageCreated{
		MessageID:   uuid.New(),
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "just between us",
		At:          time.Now(),
	}

	// Then both the recipient and the sender's own connection see it
	bob.received(req)
	alice.received(req)
}

func Test_Router_Read_Receipt_Goes_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()
	transactionID := uuid.New()

	// Given both parties sit in the transaction room
	alice := newRecordingSink()
	bob := newRecordingSink()
	registry.Authenticate("alice", alice)
	registry.Authenticate("bob", bob)
	registry.JoinRoom("alice", domain.Room(transactionID))
	registry.JoinRoom("bob", domain.Room(transactionID))

	events := newRouterUnderTest(t, registry)

	// When bob's read of alice's message produces a receipt
	events <- event.MessageRead{
		MessageID: uuid.New(),
		SenderID:  "alice",
		ReaderID:  "bob",
		At:        time.Now(),
	}

	// Then only alice is told; the reader gets nothing back
	alice.received(req)
	bob.silent(req)
}

func Test_Router_Conversation_Receipt_Fans_Out_To_Each_Sender(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()

	alice := newRecordingSink()
	bob := newRecordingSink()
	registry.Authenticate("alice", alice)
	registry.Authenticate("bob", bob)

	events := newRouterUnderTest(t, registry)

	events <- event.ConversationRead{
		TransactionID: uuid.New(),
		ReaderID:      "clara",
		SenderIDs:     []string{"alice", "bob"},
		At:            time.Now(),
	}

	alice.received(req)
	bob.received(req)
}

func Test_Router_Typing_Reaches_Room_Audience(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()
	transactionID := uuid.New()

	bob := newRecordingSink()
	registry.Authenticate("bob", bob)
	registry.JoinRoom("bob", domain.Room(transactionID))

	events := newRouterUnderTest(t, registry)

	events <- event.TypingStarted{TransactionID: transactionID, UserID: "alice", At: time.Now()}

	delivered := bob.received(req)
	req.IsType(event.TypingStarted{}, delivered)
}

func Test_Router_Offline_Target_Drops_Silently(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()

	events := newRouterUnderTest(t, registry)

	// When routing to a user with no live connection
	events <- event.MessageRead{
		MessageID: uuid.New(),
		SenderID:  "nobody-home",
		ReaderID:  "bob",
		At:        time.Now(),
	}

	// Then the router keeps working
	observer := newRecordingSink()
	registry.Authenticate("alice", observer)
	events <- event.MessageRead{MessageID: uuid.New(), SenderID: "alice", ReaderID: "bob", At: time.Now()}
	observer.received(req)
}
