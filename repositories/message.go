//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"log/slog"
	"time"

	"deal-lab/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type MessageFilter struct {
	TransactionID *uuid.UUID
	SenderID      string
	RecipientID   string
	UnreadOnly    bool
}

type IMessageRepository interface {
	Store(m domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	List(filter MessageFilter, cursor *string) ([]domain.Message, *string, error)
	MarkRead(id uuid.UUID, at time.Time) (domain.Message, error)
	MarkConversationRead(txnID uuid.UUID, readerID string, at time.Time) ([]string, error)
	Delete(id uuid.UUID) (domain.Message, error)
	Conversations(requesterID string) ([]domain.ConversationSummary, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// Store persists a message under a time-sorted primary key plus an id
// index. The key is "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding.
//  2. Prevent data loss by using the UUID as a collision disconnector if
//     two messages arrive at the same nanosecond.
func (r MessageRepository) Store(m domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	primary := messageKey(m.CreatedAt, m.ID)
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(messageIdxKey(m.ID), primary)
	})
}

func (r MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		found, _, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		m = found
		return nil
	})
	return m, err
}

// List walks messages newest-first and keeps the ones matching the
// filter, up to the configured limit. The returned cursor is the key
// suffix of the last visited entry; passing it back resumes the scan
// just past it.
func (r MessageRepository) List(filter MessageFilter, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back.
			seekKey = append(messagePrefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(messagePrefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(messagePrefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(messagePrefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug("Maximum message page size reached", "limit", *r.limitMessages)
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(messagePrefix):])
			var m domain.Message
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			if matchMessage(m, filter) {
				messages = append(messages, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}

func matchMessage(m domain.Message, filter MessageFilter) bool {
	if filter.TransactionID != nil &&
		(m.TransactionID == nil || *m.TransactionID != *filter.TransactionID) {
		return false
	}
	if filter.SenderID != "" && m.SenderID != filter.SenderID {
		return false
	}
	if filter.RecipientID != "" && m.RecipientID != filter.RecipientID {
		return false
	}
	if filter.UnreadOnly && m.ReadAt != nil {
		return false
	}
	return true
}

// MarkRead stamps ReadAt once; marking an already-read message returns
// it unchanged.
func (r MessageRepository) MarkRead(id uuid.UUID, at time.Time) (domain.Message, error) {
	var m domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		found, primary, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		m = found
		if m.ReadAt != nil {
			return nil
		}
		m.ReadAt = &at
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return txn.Set(primary, data)
	})
	return m, err
}

// MarkConversationRead marks every unread message of the transaction
// addressed to the reader, and returns the distinct senders whose
// messages were affected, for read receipts.
func (r MessageRepository) MarkConversationRead(txnID uuid.UUID, readerID string, at time.Time) ([]string, error) {
	senders := make(map[string]struct{})
	err := r.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending
		for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
			item := it.Item()
			var m domain.Message
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			if m.TransactionID == nil || *m.TransactionID != txnID {
				continue
			}
			if m.ReadAt != nil || !m.AddressedTo(readerID) {
				continue
			}
			m.ReadAt = &at
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			updates = append(updates, pending{key: item.KeyCopy(nil), data: data})
			senders[m.SenderID] = struct{}{}
		}
		for _, u := range updates {
			if err := txn.Set(u.key, u.data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Keys(senders), nil
}

// Delete removes the message and its index entry, returning the deleted
// message so the caller can cascade attachment deletion.
func (r MessageRepository) Delete(id uuid.UUID) (domain.Message, error) {
	var m domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		found, primary, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		m = found
		if err = txn.Delete(primary); err != nil {
			return err
		}
		return txn.Delete(messageIdxKey(id))
	})
	return m, err
}

// Conversations derives a summary per transaction with at least one
// message: recomputed on every call, never cached. The unread count is
// scoped to the requesting user.
func (r MessageRepository) Conversations(requesterID string) ([]domain.ConversationSummary, error) {
	grouped := make(map[uuid.UUID]*domain.ConversationSummary)
	participants := make(map[uuid.UUID]map[string]struct{})
	var order []uuid.UUID

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(messagePrefix, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(messagePrefix); it.Next() {
			var m domain.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			if m.TransactionID == nil {
				continue
			}
			txnID := *m.TransactionID
			summary, ok := grouped[txnID]
			if !ok {
				// Reverse scan: the first message seen is the latest.
				summary = &domain.ConversationSummary{TransactionID: txnID, LastMessage: m}
				grouped[txnID] = summary
				participants[txnID] = make(map[string]struct{})
				order = append(order, txnID)
			}
			participants[txnID][m.SenderID] = struct{}{}
			if m.RecipientID != "" {
				participants[txnID][m.RecipientID] = struct{}{}
			}
			if m.ReadAt == nil && m.AddressedTo(requesterID) {
				summary.UnreadCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(order, func(txnID uuid.UUID, _ int) domain.ConversationSummary {
		summary := *grouped[txnID]
		summary.Participants = lo.Keys(participants[txnID])
		return summary
	}), nil
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, []byte, error) {
	var m domain.Message
	idxItem, err := txn.Get(messageIdxKey(id))
	if err != nil {
		return m, nil, asNotFound(err)
	}
	var primary []byte
	err = idxItem.Value(func(val []byte) error {
		primary = append([]byte(nil), val...)
		return nil
	})
	if err != nil {
		return m, nil, err
	}
	item, err := txn.Get(primary)
	if err != nil {
		return m, nil, asNotFound(err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m, primary, err
}

var _ IMessageRepository = (*MessageRepository)(nil)
