package services

import (
	"context"
	"testing"

	"deal-lab/domain"
	"deal-lab/domain/event"
	apperrors "deal-lab/errors"
	"deal-lab/projection"
	"deal-lab/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_CreateTransaction_Opens_Pending(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	txn := f.seedTransaction(t)

	req.Equal(domain.TransactionPending, txn.Status)
	req.NotNil(txn.OfferDate)
	req.Zero(txn.FinalAmount)

	fetched, err := f.transactions.Get(txn.ID)
	req.NoError(err)
	req.Equal(txn.ID, fetched.ID)
}

func Test_CreateTransaction_Requires_A_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.workflow.CreateTransaction(context.Background(), CreateTransactionCommand{
		PropertyID: "property-42",
		Type:       domain.TransactionPurchase,
		Currency:   "EUR",
	})

	req.ErrorIs(err, apperrors.ErrValidation)
}

func Test_UpdateStatus_Rejects_Edges_Outside_The_Graph(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	// PENDING cannot jump straight to COMPLETED
	_, err := f.workflow.UpdateStatus(context.Background(), txn.ID, "alice", domain.TransactionCompleted, "")
	req.ErrorIs(err, apperrors.ErrInvalidState)

	// And the status did not move
	fetched, err := f.transactions.Get(txn.ID)
	req.NoError(err)
	req.Equal(domain.TransactionPending, fetched.Status)
}

func Test_UpdateStatus_Requires_Participant_Or_Elevated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	// A stranger is refused
	_, err := f.workflow.UpdateStatus(context.Background(), txn.ID, "mallory", domain.TransactionCancelled, "")
	req.ErrorIs(err, apperrors.ErrForbidden)

	// An elevated user is not
	f.authorizer.GrantRoles("support-1", []string{"admin"})
	updated, err := f.workflow.UpdateStatus(context.Background(), txn.ID, "support-1", domain.TransactionCancelled, "fraud hold")
	req.NoError(err)
	req.Equal(domain.TransactionCancelled, updated.Status)
}

func Test_Workflow_Full_Lifecycle(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	// Given the offer phase settled the transaction into ACCEPTED
	offer, err := f.negotiation.CreateOffer(context.Background(), CreateOfferCommand{
		TransactionID: txn.ID, OffererID: "alice", Amount: 240_000, Currency: "EUR",
	})
	req.NoError(err)
	_, err = f.negotiation.RespondToOffer(context.Background(), RespondToOfferCommand{
		OfferID: offer.ID, ResponderID: "bob", Decision: domain.DecisionAccept,
	})
	req.NoError(err)

	// When walking the rest of the workflow
	_, err = f.workflow.UpdateStatus(context.Background(), txn.ID, "bob", domain.TransactionInProgress, "paperwork started")
	req.NoError(err)
	final, err := f.workflow.UpdateStatus(context.Background(), txn.ID, "bob", domain.TransactionCompleted, "keys handed over")
	req.NoError(err)

	// Then the completion date is stamped and the trail is complete
	req.Equal(domain.TransactionCompleted, final.Status)
	req.NotNil(final.CompletionDate)

	history, err := f.transactions.History(txn.ID)
	req.NoError(err)
	req.Len(history, 3)
	req.Equal(domain.TransactionCompleted, history[2].NewStatus)

	// And nothing can leave a terminal status
	_, err = f.workflow.UpdateStatus(context.Background(), txn.ID, "bob", domain.TransactionInProgress, "")
	req.ErrorIs(err, apperrors.ErrInvalidState)
}

func Test_AddMilestone_Requires_Existing_Transaction(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	m, err := f.workflow.AddMilestone(context.Background(), AddMilestoneCommand{
		TransactionID: txn.ID, Title: "Inspection", OrderIndex: 1, Required: true,
	})
	req.NoError(err)
	req.False(m.Completed())

	_, err = f.workflow.AddMilestone(context.Background(), AddMilestoneCommand{
		TransactionID: uuid.New(), Title: "Orphan",
	})
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_CompleteMilestone_Progress_And_Event(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	first, err := f.workflow.AddMilestone(context.Background(), AddMilestoneCommand{
		TransactionID: txn.ID, Title: "Inspection", OrderIndex: 1,
	})
	req.NoError(err)
	_, err = f.workflow.AddMilestone(context.Background(), AddMilestoneCommand{
		TransactionID: txn.ID, Title: "Financing", OrderIndex: 2,
	})
	req.NoError(err)

	// When the buyer completes the first milestone
	progress, err := f.workflow.CompleteMilestone(context.Background(), first.ID, "alice")
	req.NoError(err)
	req.Equal(domain.Progress{Completed: 1, Total: 2}, progress)

	// Then the completion is broadcast with the cumulative percentage
	completed, ok := lo.Find(f.bus.all(), func(e event.DomainEvent) bool {
		_, ok := e.(event.MilestoneCompleted)
		return ok
	})
	req.True(ok)
	req.Equal(50.0, completed.(event.MilestoneCompleted).Percent)

	// And completing twice is an explicit idempotent failure
	_, err = f.workflow.CompleteMilestone(context.Background(), first.ID, "alice")
	req.ErrorIs(err, apperrors.ErrAlreadyCompleted)

	// And a stranger cannot complete milestones
	_, err = f.workflow.CompleteMilestone(context.Background(), first.ID, "mallory")
	req.ErrorIs(err, apperrors.ErrForbidden)
}

func Test_DeleteTransaction_Requires_Elevated_And_Cascades(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	// Given a message with an attachment on the transaction
	_, err := f.conversations.SendMessage(context.Background(), SendMessageCommand{
		TransactionID: &txn.ID,
		SenderID:      "alice",
		Content:       "signed contract attached",
		Attachments:   []AttachmentUpload{{FileName: "contract.pdf", Content: []byte("%PDF-1.4")}},
	})
	req.NoError(err)

	// A participant without elevation cannot delete
	err = f.workflow.DeleteTransaction(context.Background(), txn.ID, "alice")
	req.ErrorIs(err, apperrors.ErrForbidden)

	// An elevated user can, and attachment files are cleaned up
	f.authorizer.GrantRoles("support-1", []string{"admin"})
	req.NoError(f.workflow.DeleteTransaction(context.Background(), txn.ID, "support-1"))

	_, err = f.transactions.Get(txn.ID)
	req.ErrorIs(err, apperrors.ErrNotFound)
	req.Equal([]string{"/files/contract.pdf"}, f.attachments.deleted)

	messages, _, err := f.messages.List(repositories.MessageFilter{TransactionID: &txn.ID}, nil)
	req.NoError(err)
	req.Empty(messages)
}

func Test_DeleteTransaction_Cleans_Attachments_Beyond_One_Page(t *testing.T) {
	req := require.New(t)
	limit := 1
	f := newFixtureWithMessageLimit(t, &limit)
	txn := f.seedTransaction(t)

	// Given more attachment-bearing messages than one page holds
	for _, name := range []string{"deed.pdf", "survey.pdf", "keys.jpg"} {
		_, err := f.conversations.SendMessage(context.Background(), SendMessageCommand{
			TransactionID: &txn.ID,
			SenderID:      "alice",
			Content:       "see " + name,
			Attachments:   []AttachmentUpload{{FileName: name, Content: []byte(name)}},
		})
		req.NoError(err)
	}

	f.authorizer.GrantRoles("support-1", []string{"admin"})
	req.NoError(f.workflow.DeleteTransaction(context.Background(), txn.ID, "support-1"))

	// Then every message's file went, not just the newest page's
	req.ElementsMatch(
		[]string{"/files/deed.pdf", "/files/survey.pdf", "/files/keys.jpg"},
		f.attachments.deleted)
}

func Test_Timeline_Merges_The_Full_Story(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	txn := f.seedTransaction(t)

	offer, err := f.negotiation.CreateOffer(context.Background(), CreateOfferCommand{
		TransactionID: txn.ID, OffererID: "alice", Amount: 240_000, Currency: "EUR",
	})
	req.NoError(err)
	_, err = f.negotiation.RespondToOffer(context.Background(), RespondToOfferCommand{
		OfferID: offer.ID, ResponderID: "bob", Decision: domain.DecisionAccept,
	})
	req.NoError(err)
	m, err := f.workflow.AddMilestone(context.Background(), AddMilestoneCommand{
		TransactionID: txn.ID, Title: "Inspection", OrderIndex: 1,
	})
	req.NoError(err)
	_, err = f.workflow.CompleteMilestone(context.Background(), m.ID, "alice")
	req.NoError(err)

	// A stranger cannot read the timeline
	_, err = f.workflow.Timeline(context.Background(), txn.ID, "mallory")
	req.ErrorIs(err, apperrors.ErrForbidden)

	entries, err := f.workflow.Timeline(context.Background(), txn.ID, "alice")
	req.NoError(err)
	req.Len(entries, 3)

	kinds := lo.Map(entries, func(e projection.Entry, _ int) projection.EntryKind {
		return e.Kind
	})
	req.Contains(kinds, projection.EntryOffer)
	req.Contains(kinds, projection.EntryStatus)
	req.Contains(kinds, projection.EntryMilestone)
}
