package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deal-lab/contract"
	"deal-lab/domain"
	"deal-lab/domain/event"
	apperrors "deal-lab/errors"
	"deal-lab/projection"
	"deal-lab/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type CreateTransactionCommand struct {
	PropertyID  string                 `validate:"required"`
	BuyerID     string                 `validate:"required_without_all=SellerID AgentID"`
	SellerID    string                 `validate:"required_without_all=BuyerID AgentID"`
	AgentID     string                 `validate:"required_without_all=BuyerID SellerID"`
	Type        domain.TransactionType `validate:"required,oneof=PURCHASE RENTAL"`
	OfferAmount float64                `validate:"gte=0"`
	Currency    string                 `validate:"required,len=3"`
	Terms       string
}

type AddMilestoneCommand struct {
	TransactionID uuid.UUID `validate:"required"`
	Title         string    `validate:"required"`
	Description   string
	DueDate       *time.Time
	Required      bool
	OrderIndex    int `validate:"gte=0"`
}

type IWorkflowService interface {
	CreateTransaction(ctx context.Context, cmd CreateTransactionCommand) (domain.Transaction, error)
	ListTransactions(filter repositories.TransactionFilter) ([]domain.Transaction, error)
	UpdateStatus(ctx context.Context, transactionID uuid.UUID, actorID string, newStatus domain.TransactionStatus, notes string) (domain.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID uuid.UUID, actorID string) error
	AddMilestone(ctx context.Context, cmd AddMilestoneCommand) (domain.Milestone, error)
	CompleteMilestone(ctx context.Context, milestoneID uuid.UUID, actorID string) (domain.Progress, error)
	ListMilestones(transactionID uuid.UUID) ([]domain.Milestone, domain.Progress, error)
	Timeline(ctx context.Context, transactionID uuid.UUID, requesterID string) ([]projection.Entry, error)
}

// WorkflowService owns the transaction status lifecycle and milestone
// tracking. Every transition appends one immutable history entry under
// the same commit as the status change.
type WorkflowService struct {
	transactions repositories.ITransactionRepository
	offers       repositories.IOfferRepository
	milestones   repositories.IMilestoneRepository
	messages     repositories.IMessageRepository
	attachments  contract.IAttachmentStore
	authorizer   contract.IAuthorizer
	notifier     contract.INotifier
	bus          contract.IEventBus
	log          *slog.Logger
	now          func() time.Time
}

func NewWorkflowService(
	transactions repositories.ITransactionRepository,
	offers repositories.IOfferRepository,
	milestones repositories.IMilestoneRepository,
	messages repositories.IMessageRepository,
	attachments contract.IAttachmentStore,
	authorizer contract.IAuthorizer,
	notifier contract.INotifier,
	bus contract.IEventBus,
	log *slog.Logger,
) *WorkflowService {
	return &WorkflowService{
		transactions: transactions,
		offers:       offers,
		milestones:   milestones,
		messages:     messages,
		attachments:  attachments,
		authorizer:   authorizer,
		notifier:     notifier,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

func (s *WorkflowService) CreateTransaction(_ context.Context, cmd CreateTransactionCommand) (domain.Transaction, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	now := s.now()
	txn := domain.Transaction{
		ID:          uuid.New(),
		PropertyID:  cmd.PropertyID,
		BuyerID:     cmd.BuyerID,
		SellerID:    cmd.SellerID,
		AgentID:     cmd.AgentID,
		Type:        cmd.Type,
		Status:      domain.TransactionPending,
		OfferAmount: cmd.OfferAmount,
		Currency:    cmd.Currency,
		Terms:       cmd.Terms,
		CreatedAt:   now,
	}
	if cmd.OfferAmount > 0 {
		txn.OfferDate = &now
	}
	if err := s.transactions.Create(txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

func (s *WorkflowService) ListTransactions(filter repositories.TransactionFilter) ([]domain.Transaction, error) {
	return s.transactions.List(filter)
}

// UpdateStatus moves the transaction along the workflow graph. Fails
// Forbidden unless the actor is a participant or elevated, and rejects
// any edge the graph does not contain.
func (s *WorkflowService) UpdateStatus(_ context.Context, transactionID uuid.UUID, actorID string,
	newStatus domain.TransactionStatus, notes string) (domain.Transaction, error) {
	txn, err := s.transactions.Get(transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !s.authorizer.IsParticipant(actorID, txn) && !s.authorizer.IsElevated(actorID) {
		return domain.Transaction{}, fmt.Errorf("%w: %s may not change transaction %s",
			apperrors.ErrForbidden, actorID, transactionID)
	}
	return s.transition(txn, actorID, newStatus, notes, nil)
}

// acceptFromOffer is the cascade entry used by offer acceptance: one
// coordinated PENDING -> ACCEPTED step that stamps finalAmount.
func (s *WorkflowService) acceptFromOffer(_ context.Context, txn domain.Transaction, actorID string, amount float64) error {
	_, err := s.transition(txn, actorID, domain.TransactionAccepted, "offer accepted", func(t *domain.Transaction) {
		t.FinalAmount = amount
	})
	return err
}

func (s *WorkflowService) transition(txn domain.Transaction, actorID string,
	newStatus domain.TransactionStatus, notes string, extra func(*domain.Transaction)) (domain.Transaction, error) {
	if !domain.CanTransition(txn.Status, newStatus) {
		return domain.Transaction{}, apperrors.NewStateConflict(
			fmt.Sprintf("a status reachable from %s", txn.Status), string(newStatus))
	}

	now := s.now()
	entry := repositories.EntryAt(txn.ID, txn.Status, newStatus, actorID, notes, now)
	err := s.transactions.UpdateStatus(txn.ID, txn.Status, entry, func(t *domain.Transaction) {
		switch newStatus {
		case domain.TransactionAccepted:
			t.AcceptedDate = &now
		case domain.TransactionCompleted:
			t.CompletionDate = &now
		}
		if extra != nil {
			extra(t)
		}
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.bus.Publish(event.TransactionStatusChanged{
		TransactionID:  txn.ID,
		PreviousStatus: txn.Status,
		NewStatus:      newStatus,
		ChangedBy:      actorID,
		At:             now,
	})
	for _, userID := range txn.Counterparties(actorID) {
		s.notifier.Notify(userID, NotifyStatusChanged, map[string]any{
			"transactionId": txn.ID.String(),
			"from":          string(txn.Status),
			"to":            string(newStatus),
		})
	}
	return s.transactions.Get(txn.ID)
}

// DeleteTransaction removes the transaction and everything it owns.
// Attachment files referenced by cascading messages are deleted first;
// a failed file delete is logged, never fatal.
func (s *WorkflowService) DeleteTransaction(_ context.Context, transactionID uuid.UUID, actorID string) error {
	if !s.authorizer.IsElevated(actorID) {
		return fmt.Errorf("%w: deleting a transaction requires elevated privilege", apperrors.ErrForbidden)
	}
	// The message store pages its scans; every page must be drained or
	// older messages keep their files while the cascade drops the records.
	var cursor *string
	for {
		messages, next, err := s.messages.List(repositories.MessageFilter{TransactionID: &transactionID}, cursor)
		if err != nil {
			return err
		}
		for _, m := range messages {
			for _, a := range m.Attachments {
				if err := s.attachments.Delete(a.URL); err != nil {
					s.log.Warn("Attachment cleanup failed", "url", a.URL, "error", err)
				}
			}
		}
		if next == nil || *next == "" {
			break
		}
		cursor = next
	}
	return s.transactions.Delete(transactionID)
}

func (s *WorkflowService) AddMilestone(_ context.Context, cmd AddMilestoneCommand) (domain.Milestone, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Milestone{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if _, err := s.transactions.Get(cmd.TransactionID); err != nil {
		return domain.Milestone{}, err
	}

	m := domain.Milestone{
		ID:            uuid.New(),
		TransactionID: cmd.TransactionID,
		Title:         cmd.Title,
		Description:   cmd.Description,
		DueDate:       cmd.DueDate,
		Required:      cmd.Required,
		OrderIndex:    cmd.OrderIndex,
		CreatedAt:     s.now(),
	}
	if err := s.milestones.Create(m); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// CompleteMilestone stamps the completion and returns the recomputed
// cumulative progress. Completing twice yields ErrAlreadyCompleted: an
// explicit idempotency outcome, never silent data loss.
func (s *WorkflowService) CompleteMilestone(_ context.Context, milestoneID uuid.UUID, actorID string) (domain.Progress, error) {
	m, err := s.milestones.Get(milestoneID)
	if err != nil {
		return domain.Progress{}, err
	}
	txn, err := s.transactions.Get(m.TransactionID)
	if err != nil {
		return domain.Progress{}, err
	}
	if !s.authorizer.IsParticipant(actorID, txn) && !s.authorizer.IsElevated(actorID) {
		return domain.Progress{}, fmt.Errorf("%w: %s may not complete milestones of transaction %s",
			apperrors.ErrForbidden, actorID, txn.ID)
	}

	now := s.now()
	if _, err = s.milestones.Complete(milestoneID, actorID, now); err != nil {
		return domain.Progress{}, err
	}
	progress, err := s.milestones.ProgressFor(m.TransactionID)
	if err != nil {
		return domain.Progress{}, err
	}

	s.bus.Publish(event.MilestoneCompleted{
		MilestoneID:   milestoneID,
		TransactionID: m.TransactionID,
		CompletedBy:   actorID,
		Percent:       progress.Percent(),
		At:            now,
	})
	for _, userID := range txn.Counterparties(actorID) {
		s.notifier.Notify(userID, NotifyMilestoneCompleted, map[string]any{
			"milestoneId":   milestoneID.String(),
			"transactionId": txn.ID.String(),
			"title":         m.Title,
		})
	}
	return progress, nil
}

func (s *WorkflowService) ListMilestones(transactionID uuid.UUID) ([]domain.Milestone, domain.Progress, error) {
	milestones, err := s.milestones.ListByTransaction(transactionID)
	if err != nil {
		return nil, domain.Progress{}, err
	}
	progress := domain.Progress{
		Total: len(milestones),
		Completed: lo.CountBy(milestones, func(m domain.Milestone) bool {
			return m.Completed()
		}),
	}
	return milestones, progress, nil
}

// Timeline is the merged, time-sorted audit view: status history,
// milestone completions, and offer events.
func (s *WorkflowService) Timeline(_ context.Context, transactionID uuid.UUID, requesterID string) ([]projection.Entry, error) {
	txn, err := s.transactions.Get(transactionID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.IsParticipant(requesterID, txn) && !s.authorizer.IsElevated(requesterID) {
		return nil, fmt.Errorf("%w: %s may not view transaction %s", apperrors.ErrForbidden, requesterID, transactionID)
	}

	history, err := s.transactions.History(transactionID)
	if err != nil {
		return nil, err
	}
	milestones, err := s.milestones.ListByTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	offers, err := s.offers.ListByTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	return projection.Timeline(history, milestones, offers, s.now()), nil
}

var _ IWorkflowService = (*WorkflowService)(nil)
