package services

import (
	"fmt"
	"log/slog"
	"time"

	"deal-lab/auth"
	"deal-lab/contract"
	"deal-lab/domain"
	apperrors "deal-lab/errors"
	"deal-lab/repositories"

	"github.com/google/uuid"
)

type IPresenceService interface {
	Authenticate(token string, sink contract.EventSink) (string, error)
	Disconnect(userID string, sink contract.EventSink)
	IsOnline(userID string) bool
	ListOnline() []string
	JoinTransactionRoom(userID string, transactionID uuid.UUID) error
	LeaveTransactionRoom(userID string, transactionID uuid.UUID)
	StartTyping(userID string, transactionID uuid.UUID)
	StopTyping(userID string, transactionID uuid.UUID)
}

// PresenceService is the connection-facing surface: token-validated
// connects, room membership, and typing signals. Everything here
// tolerates staleness; presence reads carry no consistency guarantee
// beyond the last observed connect or disconnect.
type PresenceService struct {
	registry     contract.IRegistry
	dispatcher   contract.IDispatcher
	authorizer   *auth.Authorizer
	transactions repositories.ITransactionRepository
	log          *slog.Logger
	now          func() time.Time
}

func NewPresenceService(
	registry contract.IRegistry,
	dispatcher contract.IDispatcher,
	authorizer *auth.Authorizer,
	transactions repositories.ITransactionRepository,
	log *slog.Logger,
) *PresenceService {
	return &PresenceService{
		registry:     registry,
		dispatcher:   dispatcher,
		authorizer:   authorizer,
		transactions: transactions,
		log:          log,
		now:          time.Now,
	}
}

// Authenticate validates the connection token, records the live sink
// (last connection wins), and caches the caller's roles for privilege
// checks. Returns the authenticated user id.
func (s *PresenceService) Authenticate(token string, sink contract.EventSink) (string, error) {
	claims, err := auth.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrForbidden, err)
	}
	s.registry.Authenticate(claims.UserID, sink)
	s.authorizer.GrantRoles(claims.UserID, claims.Roles)
	s.log.Debug("Connection authenticated", "user", claims.UserID)
	return claims.UserID, nil
}

// Disconnect tears down one connection. The sink identifies which one:
// when the user reconnected in the meantime, closing the stale
// connection leaves the live session untouched.
func (s *PresenceService) Disconnect(userID string, sink contract.EventSink) {
	s.registry.Disconnect(userID, sink)
	s.log.Debug("Connection closed", "user", userID)
}

func (s *PresenceService) IsOnline(userID string) bool {
	return s.registry.IsOnline(userID)
}

func (s *PresenceService) ListOnline() []string {
	return s.registry.ListOnline()
}

// JoinTransactionRoom subscribes a connection to a transaction's event
// audience. Only participants and elevated users may join.
func (s *PresenceService) JoinTransactionRoom(userID string, transactionID uuid.UUID) error {
	txn, err := s.transactions.Get(transactionID)
	if err != nil {
		return err
	}
	if !s.authorizer.IsParticipant(userID, txn) && !s.authorizer.IsElevated(userID) {
		return fmt.Errorf("%w: %s is not a participant of transaction %s",
			apperrors.ErrForbidden, userID, transactionID)
	}
	s.dispatcher.Dispatch(domain.JoinRoomCommand{TransactionID: transactionID, UserID: userID})
	return nil
}

func (s *PresenceService) LeaveTransactionRoom(userID string, transactionID uuid.UUID) {
	s.dispatcher.Dispatch(domain.LeaveRoomCommand{TransactionID: transactionID, UserID: userID})
}

// Typing signals are ephemeral: no persistence, no authorization round
// trip, dropped silently when nobody is listening.
func (s *PresenceService) StartTyping(userID string, transactionID uuid.UUID) {
	s.dispatcher.Dispatch(domain.StartTypingCommand{TransactionID: transactionID, UserID: userID, At: s.now()})
}

func (s *PresenceService) StopTyping(userID string, transactionID uuid.UUID) {
	s.dispatcher.Dispatch(domain.StopTypingCommand{TransactionID: transactionID, UserID: userID, At: s.now()})
}

var _ IPresenceService = (*PresenceService)(nil)
