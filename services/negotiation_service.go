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

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// Notification kinds handed to the external dispatcher.
const (
	NotifyOfferCreated       = "offer.created"
	NotifyOfferResponded     = "offer.responded"
	NotifyMessageReceived    = "message.received"
	NotifyMilestoneCompleted = "milestone.completed"
	NotifyStatusChanged      = "transaction.status_changed"
)

type CreateOfferCommand struct {
	TransactionID uuid.UUID `validate:"required"`
	OffererID     string    `validate:"required"`
	Amount        float64   `validate:"required,gt=0"`
	Currency      string    `validate:"required,len=3"`
	Message       string
	Conditions    []string
	ValidUntil    *time.Time
	ParentOfferID *uuid.UUID
}

// CounterOfferPayload carries the details of the replacement offer a
// COUNTER decision creates.
type CounterOfferPayload struct {
	Amount     float64 `validate:"required,gt=0"`
	Currency   string  `validate:"required,len=3"`
	Message    string
	Conditions []string
	ValidUntil *time.Time
}

type RespondToOfferCommand struct {
	OfferID      uuid.UUID       `validate:"required"`
	ResponderID  string          `validate:"required"`
	Decision     domain.Decision `validate:"required,oneof=ACCEPT REJECT COUNTER WITHDRAW"`
	CounterOffer *CounterOfferPayload
}

type RespondResult struct {
	Offer        domain.Offer
	CounterOffer *domain.Offer
}

type INegotiationService interface {
	CreateOffer(ctx context.Context, cmd CreateOfferCommand) (domain.Offer, error)
	RespondToOffer(ctx context.Context, cmd RespondToOfferCommand) (RespondResult, error)
	ListOffers(transactionID uuid.UUID) ([]domain.Offer, error)
	OfferTree(transactionID uuid.UUID) (domain.OfferTree, error)
}

// NegotiationService is the offer/counter-offer state machine. All
// status flips go through the store's compare-and-swap so racing
// responders resolve to exactly one winner.
type NegotiationService struct {
	transactions repositories.ITransactionRepository
	offers       repositories.IOfferRepository
	workflow     *WorkflowService
	authorizer   contract.IAuthorizer
	notifier     contract.INotifier
	bus          contract.IEventBus
	log          *slog.Logger
	now          func() time.Time
}

func NewNegotiationService(
	transactions repositories.ITransactionRepository,
	offers repositories.IOfferRepository,
	workflow *WorkflowService,
	authorizer contract.IAuthorizer,
	notifier contract.INotifier,
	bus contract.IEventBus,
	log *slog.Logger,
) *NegotiationService {
	return &NegotiationService{
		transactions: transactions,
		offers:       offers,
		workflow:     workflow,
		authorizer:   authorizer,
		notifier:     notifier,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

// CreateOffer opens a new root or chained offer in PENDING.
// Validation and authorization happen before any mutation.
func (s *NegotiationService) CreateOffer(_ context.Context, cmd CreateOfferCommand) (domain.Offer, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Offer{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	txn, err := s.transactions.Get(cmd.TransactionID)
	if err != nil {
		return domain.Offer{}, err
	}
	if !s.authorizer.IsParticipant(cmd.OffererID, txn) {
		return domain.Offer{}, fmt.Errorf("%w: %s is not a participant of transaction %s",
			apperrors.ErrForbidden, cmd.OffererID, txn.ID)
	}
	if cmd.ParentOfferID != nil {
		parent, err := s.offers.Get(*cmd.ParentOfferID)
		if err != nil {
			return domain.Offer{}, err
		}
		if parent.TransactionID != cmd.TransactionID {
			return domain.Offer{}, fmt.Errorf("%w: parent offer belongs to another transaction",
				apperrors.ErrValidation)
		}
	}

	offer := domain.Offer{
		ID:            uuid.New(),
		TransactionID: cmd.TransactionID,
		OffererID:     cmd.OffererID,
		Amount:        cmd.Amount,
		Currency:      cmd.Currency,
		Message:       cmd.Message,
		Conditions:    cmd.Conditions,
		ValidUntil:    cmd.ValidUntil,
		ParentOfferID: cmd.ParentOfferID,
		Status:        domain.OfferPending,
		CreatedAt:     s.now(),
	}
	if err = s.offers.Create(offer); err != nil {
		return domain.Offer{}, err
	}

	s.bus.Publish(event.OfferCreated{
		OfferID:       offer.ID,
		TransactionID: offer.TransactionID,
		OffererID:     offer.OffererID,
		Amount:        offer.Amount,
		Currency:      offer.Currency,
		At:            offer.CreatedAt,
	})
	for _, userID := range txn.Counterparties(cmd.OffererID) {
		s.notifier.Notify(userID, NotifyOfferCreated, map[string]any{
			"offerId":       offer.ID.String(),
			"transactionId": txn.ID.String(),
			"amount":        offer.Amount,
			"currency":      offer.Currency,
		})
	}
	return offer, nil
}

// RespondToOffer applies a decision to a PENDING offer. The store-level
// update is a compare-and-swap on (offerId, PENDING): the loser of a
// race gets a state conflict and must retry against the current offer.
func (s *NegotiationService) RespondToOffer(ctx context.Context, cmd RespondToOfferCommand) (RespondResult, error) {
	if err := validate.Struct(cmd); err != nil {
		return RespondResult{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if cmd.Decision == domain.DecisionCounter {
		if cmd.CounterOffer == nil {
			return RespondResult{}, fmt.Errorf("%w: counter decision requires counter-offer details",
				apperrors.ErrValidation)
		}
		if err := validate.Struct(cmd.CounterOffer); err != nil {
			return RespondResult{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
	}

	offer, err := s.offers.Get(cmd.OfferID)
	if err != nil {
		return RespondResult{}, err
	}
	txn, err := s.transactions.Get(offer.TransactionID)
	if err != nil {
		return RespondResult{}, err
	}
	if !s.authorizer.IsParticipant(cmd.ResponderID, txn) {
		return RespondResult{}, fmt.Errorf("%w: %s is not a participant of transaction %s",
			apperrors.ErrForbidden, cmd.ResponderID, txn.ID)
	}
	if cmd.Decision == domain.DecisionWithdraw {
		// Only the offerer can take back their own offer.
		if cmd.ResponderID != offer.OffererID {
			return RespondResult{}, fmt.Errorf("%w: only the offerer may withdraw an offer",
				apperrors.ErrForbidden)
		}
	} else if cmd.ResponderID == offer.OffererID {
		return RespondResult{}, fmt.Errorf("%w: responding to your own offer is prohibited",
			apperrors.ErrForbidden)
	}

	// Expiry is derived at read time, never stored.
	if effective := domain.EffectiveStatus(offer, s.now()); effective != domain.OfferPending {
		return RespondResult{}, apperrors.NewStateConflict(string(domain.OfferPending), string(effective))
	}

	result := RespondResult{Offer: offer}
	switch cmd.Decision {
	case domain.DecisionAccept:
		// Acceptance flips the offer and the transaction in one
		// coordinated step. The workflow edge is checked before the
		// offer moves: a transaction that can no longer reach ACCEPTED
		// must leave both records untouched.
		if !domain.CanTransition(txn.Status, domain.TransactionAccepted) {
			return RespondResult{}, apperrors.NewStateConflict(
				fmt.Sprintf("a status reachable from %s", txn.Status), string(domain.TransactionAccepted))
		}
		if err = s.offers.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferAccepted, nil); err != nil {
			return RespondResult{}, err
		}
		result.Offer.Status = domain.OfferAccepted
		// Stamps finalAmount and acceptedDate.
		if err = s.workflow.acceptFromOffer(ctx, txn, cmd.ResponderID, offer.Amount); err != nil {
			return result, err
		}
	case domain.DecisionReject:
		if err = s.offers.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferRejected, nil); err != nil {
			return RespondResult{}, err
		}
		result.Offer.Status = domain.OfferRejected
	case domain.DecisionWithdraw:
		if err = s.offers.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferWithdrawn, nil); err != nil {
			return RespondResult{}, err
		}
		result.Offer.Status = domain.OfferWithdrawn
	case domain.DecisionCounter:
		counter := domain.Offer{
			ID:            uuid.New(),
			TransactionID: offer.TransactionID,
			OffererID:     cmd.ResponderID,
			Amount:        cmd.CounterOffer.Amount,
			Currency:      cmd.CounterOffer.Currency,
			Message:       cmd.CounterOffer.Message,
			Conditions:    cmd.CounterOffer.Conditions,
			ValidUntil:    cmd.CounterOffer.ValidUntil,
			ParentOfferID: lo.ToPtr(offer.ID),
			Status:        domain.OfferPending,
			CreatedAt:     s.now(),
		}
		// One commit: the original flips to COUNTERED and the chained
		// counter-offer appears, or neither does.
		if err = s.offers.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferCountered, &counter); err != nil {
			return RespondResult{}, err
		}
		result.Offer.Status = domain.OfferCountered
		result.CounterOffer = &counter
	}

	var counterID *uuid.UUID
	if result.CounterOffer != nil {
		counterID = lo.ToPtr(result.CounterOffer.ID)
	}
	s.bus.Publish(event.OfferResponded{
		OfferID:        offer.ID,
		TransactionID:  offer.TransactionID,
		ResponderID:    cmd.ResponderID,
		Decision:       cmd.Decision,
		CounterOfferID: counterID,
		At:             s.now(),
	})
	for _, userID := range txn.Counterparties(cmd.ResponderID) {
		s.notifier.Notify(userID, NotifyOfferResponded, map[string]any{
			"offerId":       offer.ID.String(),
			"transactionId": txn.ID.String(),
			"decision":      string(cmd.Decision),
		})
	}
	return result, nil
}

// ListOffers returns the transaction's offer chain in creation order,
// with statuses resolved through EffectiveStatus.
func (s *NegotiationService) ListOffers(transactionID uuid.UUID) ([]domain.Offer, error) {
	offers, err := s.offers.ListByTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return lo.Map(offers, func(o domain.Offer, _ int) domain.Offer {
		o.Status = domain.EffectiveStatus(o, now)
		return o
	}), nil
}

// OfferTree returns the whole counter-offer tree of a transaction.
func (s *NegotiationService) OfferTree(transactionID uuid.UUID) (domain.OfferTree, error) {
	offers, err := s.ListOffers(transactionID)
	if err != nil {
		return domain.OfferTree{}, err
	}
	return domain.BuildOfferTree(offers), nil
}

var _ INegotiationService = (*NegotiationService)(nil)
