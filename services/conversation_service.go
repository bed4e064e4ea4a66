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
	"deal-lab/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type AttachmentUpload struct {
	FileName string `validate:"required"`
	Content  []byte `validate:"required"`
}

type SendMessageCommand struct {
	TransactionID *uuid.UUID
	SenderID      string `validate:"required"`
	RecipientID   string
	Subject       string
	Content       string `validate:"required"`
	Internal      bool
	Attachments   []AttachmentUpload `validate:"dive"`
}

type IConversationService interface {
	SendMessage(ctx context.Context, cmd SendMessageCommand) (domain.Message, error)
	ListMessages(filter repositories.MessageFilter, cursor *string) ([]domain.Message, *string, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (domain.Message, error)
	MarkConversationRead(ctx context.Context, transactionID uuid.UUID, readerID string) error
	DeleteMessage(ctx context.Context, messageID uuid.UUID, requesterID string) error
	ListConversations(requesterID string) ([]domain.ConversationSummary, error)
}

// ConversationService is the persistence and query surface for message
// history. State is durably written before any event leaves the service.
type ConversationService struct {
	transactions repositories.ITransactionRepository
	messages     repositories.IMessageRepository
	attachments  contract.IAttachmentStore
	authorizer   contract.IAuthorizer
	notifier     contract.INotifier
	bus          contract.IEventBus
	log          *slog.Logger
	now          func() time.Time
}

func NewConversationService(
	transactions repositories.ITransactionRepository,
	messages repositories.IMessageRepository,
	attachments contract.IAttachmentStore,
	authorizer contract.IAuthorizer,
	notifier contract.INotifier,
	bus contract.IEventBus,
	log *slog.Logger,
) *ConversationService {
	return &ConversationService{
		transactions: transactions,
		messages:     messages,
		attachments:  attachments,
		authorizer:   authorizer,
		notifier:     notifier,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

// SendMessage persists a message addressed to a transaction, a direct
// recipient, or both. A message with neither target is rejected before
// any mutation.
func (s *ConversationService) SendMessage(_ context.Context, cmd SendMessageCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if cmd.TransactionID == nil && cmd.RecipientID == "" {
		return domain.Message{}, fmt.Errorf("%w: message needs a transaction or a recipient",
			apperrors.ErrValidation)
	}

	var txn domain.Transaction
	if cmd.TransactionID != nil {
		var err error
		txn, err = s.transactions.Get(*cmd.TransactionID)
		if err != nil {
			return domain.Message{}, err
		}
		if !s.authorizer.IsParticipant(cmd.SenderID, txn) {
			return domain.Message{}, fmt.Errorf("%w: %s is not a participant of transaction %s",
				apperrors.ErrForbidden, cmd.SenderID, txn.ID)
		}
	}

	var stored []domain.Attachment
	for _, upload := range cmd.Attachments {
		attachment, err := s.attachments.Save(upload.FileName, upload.Content)
		if err != nil {
			return domain.Message{}, fmt.Errorf("storing attachment %q: %w", upload.FileName, err)
		}
		stored = append(stored, attachment)
	}

	m := domain.Message{
		ID:            uuid.New(),
		TransactionID: cmd.TransactionID,
		SenderID:      cmd.SenderID,
		RecipientID:   cmd.RecipientID,
		Subject:       cmd.Subject,
		Content:       cmd.Content,
		Internal:      cmd.Internal,
		Attachments:   stored,
		CreatedAt:     s.now(),
	}
	if err := s.messages.Store(m); err != nil {
		return domain.Message{}, err
	}

	s.bus.Publish(event.MessageCreated{
		MessageID:     m.ID,
		TransactionID: m.TransactionID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		Subject:       m.Subject,
		Content:       m.Content,
		At:            m.CreatedAt,
	})
	if cmd.TransactionID != nil {
		for _, userID := range txn.Counterparties(cmd.SenderID) {
			s.notifier.Notify(userID, NotifyMessageReceived, map[string]any{
				"messageId":     m.ID.String(),
				"transactionId": txn.ID.String(),
			})
		}
	} else {
		s.notifier.Notify(cmd.RecipientID, NotifyMessageReceived, map[string]any{
			"messageId": m.ID.String(),
		})
	}
	return m, nil
}

func (s *ConversationService) ListMessages(filter repositories.MessageFilter, cursor *string) ([]domain.Message, *string, error) {
	return s.messages.List(filter, cursor)
}

// MarkRead stamps the read timestamp. Fails Forbidden unless the reader
// is the addressed recipient; re-reading an already-read message is a
// no-op without a second receipt.
func (s *ConversationService) MarkRead(_ context.Context, messageID uuid.UUID, readerID string) (domain.Message, error) {
	m, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if !m.AddressedTo(readerID) {
		return domain.Message{}, fmt.Errorf("%w: %s is not the recipient of message %s",
			apperrors.ErrForbidden, readerID, messageID)
	}
	if m.TransactionID != nil {
		txn, err := s.transactions.Get(*m.TransactionID)
		if err != nil {
			return domain.Message{}, err
		}
		if !s.authorizer.IsParticipant(readerID, txn) {
			return domain.Message{}, fmt.Errorf("%w: %s is not a participant of transaction %s",
				apperrors.ErrForbidden, readerID, txn.ID)
		}
	}

	alreadyRead := m.ReadAt != nil
	updated, err := s.messages.MarkRead(messageID, s.now())
	if err != nil {
		return domain.Message{}, err
	}
	if !alreadyRead {
		s.bus.Publish(event.MessageRead{
			MessageID: messageID,
			SenderID:  m.SenderID,
			ReaderID:  readerID,
			At:        *updated.ReadAt,
		})
	}
	return updated, nil
}

// MarkConversationRead bulk-marks the reader's unread messages in a
// transaction and emits one receipt naming the affected senders.
func (s *ConversationService) MarkConversationRead(_ context.Context, transactionID uuid.UUID, readerID string) error {
	txn, err := s.transactions.Get(transactionID)
	if err != nil {
		return err
	}
	if !s.authorizer.IsParticipant(readerID, txn) {
		return fmt.Errorf("%w: %s is not a participant of transaction %s",
			apperrors.ErrForbidden, readerID, transactionID)
	}

	now := s.now()
	senders, err := s.messages.MarkConversationRead(transactionID, readerID, now)
	if err != nil {
		return err
	}
	if len(senders) > 0 {
		s.bus.Publish(event.ConversationRead{
			TransactionID: transactionID,
			ReaderID:      readerID,
			SenderIDs:     senders,
			At:            now,
		})
	}
	return nil
}

// DeleteMessage removes a message; only its sender may do so.
// Attachment deletion cascades; file-store failures are logged and never
// fail the operation, since the message itself is already gone.
func (s *ConversationService) DeleteMessage(_ context.Context, messageID uuid.UUID, requesterID string) error {
	m, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender may delete message %s", apperrors.ErrForbidden, messageID)
	}

	deleted, err := s.messages.Delete(messageID)
	if err != nil {
		return err
	}
	for _, a := range deleted.Attachments {
		if err := s.attachments.Delete(a.URL); err != nil {
			s.log.Warn("Attachment cleanup failed", "url", a.URL, "error", err)
		}
	}
	return nil
}

// ListConversations derives the requester's conversation summaries,
// keeping only transactions the requester can actually see.
func (s *ConversationService) ListConversations(requesterID string) ([]domain.ConversationSummary, error) {
	summaries, err := s.messages.Conversations(requesterID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(summaries, func(summary domain.ConversationSummary, _ int) bool {
		txn, err := s.transactions.Get(summary.TransactionID)
		if err != nil {
			// Transaction gone: fall back to message participants.
			return lo.Contains(summary.Participants, requesterID)
		}
		return s.authorizer.IsParticipant(requesterID, txn)
	}), nil
}

var _ IConversationService = (*ConversationService)(nil)
