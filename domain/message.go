package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a stored file reference returned by the attachment store.
type Attachment struct {
	FileName string
	URL      string
	Size     int64
	MimeType string
}

// Message is addressed to a transaction, a direct recipient, or both.
// A nil ReadAt means unread.
type Message struct {
	ID            uuid.UUID
	TransactionID *uuid.UUID
	SenderID      string
	RecipientID   string
	Subject       string
	Content       string
	Internal      bool
	Attachments   []Attachment
	ReadAt        *time.Time
	CreatedAt     time.Time
}

// HasTarget reports whether the message has at least one addressing
// target. A message with neither is invalid and must be rejected.
func (m Message) HasTarget() bool {
	return m.TransactionID != nil || m.RecipientID != ""
}

// AddressedTo reports whether userID may mark this message as read:
// the direct recipient, or for transaction messages anyone but the sender.
func (m Message) AddressedTo(userID string) bool {
	if m.RecipientID != "" {
		return m.RecipientID == userID
	}
	return m.TransactionID != nil && m.SenderID != userID
}

// ConversationSummary is derived per query, never stored.
type ConversationSummary struct {
	TransactionID uuid.UUID
	Participants  []string
	LastMessage   Message
	UnreadCount   int
}
