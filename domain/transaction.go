// Package domain contains core concepts of the negotiation system.
// This file defines Transaction entities and the status workflow graph.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionAccepted   TransactionStatus = "ACCEPTED"
	TransactionInProgress TransactionStatus = "IN_PROGRESS"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
	TransactionFailed     TransactionStatus = "FAILED"
)

type TransactionType string

const (
	TransactionPurchase TransactionType = "PURCHASE"
	TransactionRental   TransactionType = "RENTAL"
)

// Transaction ties a property, its parties, and the negotiation outcome
// together. FinalAmount is only stamped when an offer is accepted.
type Transaction struct {
	ID             uuid.UUID
	PropertyID     string
	BuyerID        string
	SellerID       string
	AgentID        string
	Type           TransactionType
	Status         TransactionStatus
	OfferAmount    float64
	FinalAmount    float64
	Currency       string
	Terms          string
	OfferDate      *time.Time
	AcceptedDate   *time.Time
	CompletionDate *time.Time
	CreatedAt      time.Time
}

// Participants returns the non-empty party references of the transaction.
func (t Transaction) Participants() []string {
	var res []string
	for _, id := range []string{t.BuyerID, t.SellerID, t.AgentID} {
		if id != "" {
			res = append(res, id)
		}
	}
	return res
}

func (t Transaction) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == t.BuyerID || userID == t.SellerID || userID == t.AgentID
}

// Counterparties returns every participant except the given user.
// Used to pick notification targets for offer and message events.
func (t Transaction) Counterparties(userID string) []string {
	var res []string
	for _, id := range t.Participants() {
		if id != userID {
			res = append(res, id)
		}
	}
	return res
}

func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionCompleted, TransactionCancelled, TransactionFailed:
		return true
	}
	return false
}

// transitions is the workflow graph. Cancellation and failure are
// reachable from any non-terminal status; everything else is linear.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:    {TransactionAccepted, TransactionCancelled, TransactionFailed},
	TransactionAccepted:   {TransactionInProgress, TransactionCancelled, TransactionFailed},
	TransactionInProgress: {TransactionCompleted, TransactionCancelled, TransactionFailed},
}

// CanTransition reports whether the workflow graph contains the edge
// from -> to. Terminal statuses have no outgoing edges.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusHistoryEntry is one append-only audit record of a transition.
// Entries are never mutated or deleted once written.
type StatusHistoryEntry struct {
	ID             uuid.UUID
	TransactionID  uuid.UUID
	PreviousStatus TransactionStatus
	NewStatus      TransactionStatus
	ChangedBy      string
	Notes          string
	CreatedAt      time.Time
}
