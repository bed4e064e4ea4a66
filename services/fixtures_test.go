package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"deal-lab/auth"
	"deal-lab/domain"
	"deal-lab/domain/event"
	"deal-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// busRecorder captures published events in order.
type busRecorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (b *busRecorder) Publish(e event.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *busRecorder) all() []event.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.DomainEvent(nil), b.events...)
}

type notification struct {
	UserID string
	Kind   string
}

type notifierRecorder struct {
	mu   sync.Mutex
	sent []notification
}

func (n *notifierRecorder) Notify(userID, kind string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Kind: kind})
}

func (n *notifierRecorder) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

// attachmentRecorder stands in for the disk store; no files touched.
type attachmentRecorder struct {
	saved   []string
	deleted []string
}

func (a *attachmentRecorder) Save(fileName string, content []byte) (domain.Attachment, error) {
	a.saved = append(a.saved, fileName)
	return domain.Attachment{
		FileName: fileName,
		URL:      "/files/" + fileName,
		Size:     int64(len(content)),
		MimeType: "application/octet-stream",
	}, nil
}

func (a *attachmentRecorder) Delete(url string) error {
	a.deleted = append(a.deleted, url)
	return nil
}

type fixture struct {
	transactions  repositories.TransactionRepository
	offers        repositories.OfferRepository
	milestones    repositories.MilestoneRepository
	messages      repositories.MessageRepository
	bus           *busRecorder
	notifier      *notifierRecorder
	attachments   *attachmentRecorder
	authorizer    *auth.Authorizer
	workflow      *WorkflowService
	negotiation   *NegotiationService
	conversations *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithMessageLimit(t, nil)
}

// newFixtureWithMessageLimit mirrors the production wiring where
// LIMIT_MESSAGES caps the message page size.
func newFixtureWithMessageLimit(t *testing.T, limitMessages *int) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	f := &fixture{
		transactions: repositories.NewTransactionRepository(db, log),
		offers:       repositories.NewOfferRepository(db, log),
		milestones:   repositories.NewMilestoneRepository(db, log),
		messages:     repositories.NewMessageRepository(db, log, limitMessages),
		bus:          &busRecorder{},
		notifier:     &notifierRecorder{},
		attachments:  &attachmentRecorder{},
		authorizer:   auth.NewAuthorizer(),
	}
	f.workflow = NewWorkflowService(f.transactions, f.offers, f.milestones, f.messages,
		f.attachments, f.authorizer, f.notifier, f.bus, log)
	f.negotiation = NewNegotiationService(f.transactions, f.offers, f.workflow,
		f.authorizer, f.notifier, f.bus, log)
	f.conversations = NewConversationService(f.transactions, f.messages,
		f.attachments, f.authorizer, f.notifier, f.bus, log)
	return f
}

// seedTransaction creates a PENDING purchase between alice (buyer) and
// bob (seller) through the real service path.
func (f *fixture) seedTransaction(t *testing.T) domain.Transaction {
	t.Helper()
	txn, err := f.workflow.CreateTransaction(context.Background(), CreateTransactionCommand{
		PropertyID:  "property-42",
		BuyerID:     "alice",
		SellerID:    "bob",
		Type:        domain.TransactionPurchase,
		OfferAmount: 250_000,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	return txn
}
