// Package event defines the domain events fanned out to live connections.
// Every event carries a broadcast scope: the transaction room or a single
// user channel entitled to see it.
package event

import (
	"fmt"
	"strings"
	"time"

	"deal-lab/domain"

	"github.com/google/uuid"
)

// Scope is the audience selector of an event:
// "transaction:<id>" or "user:<id>".
type Scope string

const (
	ScopeTransaction = "transaction"
	ScopeUser        = "user"
)

func TransactionScope(id uuid.UUID) Scope {
	return Scope(fmt.Sprintf("%s:%s", ScopeTransaction, id))
}

func UserScope(userID string) Scope {
	return Scope(fmt.Sprintf("%s:%s", ScopeUser, userID))
}

// Split breaks a scope into its kind and target id.
func (s Scope) Split() (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(string(s), ":")
	if !ok || id == "" {
		return "", "", false
	}
	return kind, id, true
}

type DomainEvent interface {
	Scope() Scope
}

type MessageCreated struct {
	MessageID     uuid.UUID
	TransactionID *uuid.UUID
	SenderID      string
	RecipientID   string
	Subject       string
	Content       string
	At            time.Time
}

func (e MessageCreated) Scope() Scope {
	if e.TransactionID != nil {
		return TransactionScope(*e.TransactionID)
	}
	return UserScope(e.RecipientID)
}

// MessageRead is a receipt routed back to the original sender only.
type MessageRead struct {
	MessageID uuid.UUID
	SenderID  string
	ReaderID  string
	At        time.Time
}

func (e MessageRead) Scope() Scope {
	return UserScope(e.SenderID)
}

// ConversationRead is the bulk receipt; SenderIDs are the distinct
// authors whose messages were marked read.
type ConversationRead struct {
	TransactionID uuid.UUID
	ReaderID      string
	SenderIDs     []string
	At            time.Time
}

func (e ConversationRead) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

// TypingStarted and TypingStopped are ephemeral: never persisted,
// dropped silently when the audience is offline.
type TypingStarted struct {
	TransactionID uuid.UUID
	UserID        string
	At            time.Time
}

func (e TypingStarted) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

type TypingStopped struct {
	TransactionID uuid.UUID
	UserID        string
	At            time.Time
}

func (e TypingStopped) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

type OfferCreated struct {
	OfferID       uuid.UUID
	TransactionID uuid.UUID
	OffererID     string
	Amount        float64
	Currency      string
	At            time.Time
}

func (e OfferCreated) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

type OfferResponded struct {
	OfferID        uuid.UUID
	TransactionID  uuid.UUID
	ResponderID    string
	Decision       domain.Decision
	CounterOfferID *uuid.UUID
	At             time.Time
}

func (e OfferResponded) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

type MilestoneCompleted struct {
	MilestoneID   uuid.UUID
	TransactionID uuid.UUID
	CompletedBy   string
	Percent       float64
	At            time.Time
}

func (e MilestoneCompleted) Scope() Scope {
	return TransactionScope(e.TransactionID)
}

type TransactionStatusChanged struct {
	TransactionID  uuid.UUID
	PreviousStatus domain.TransactionStatus
	NewStatus      domain.TransactionStatus
	ChangedBy      string
	At             time.Time
}

func (e TransactionStatusChanged) Scope() Scope {
	return TransactionScope(e.TransactionID)
}
