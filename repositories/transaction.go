//go:generate go run go.uber.org/mock/mockgen -source=transaction.go -destination=../mocks/mock_transaction_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"deal-lab/domain"
	apperrors "deal-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type TransactionFilter struct {
	ParticipantID string
	Status        domain.TransactionStatus
	Type          domain.TransactionType
}

type ITransactionRepository interface {
	Create(t domain.Transaction) error
	Get(id uuid.UUID) (domain.Transaction, error)
	List(filter TransactionFilter) ([]domain.Transaction, error)
	UpdateStatus(id uuid.UUID, expected domain.TransactionStatus, entry domain.StatusHistoryEntry, mutate func(*domain.Transaction)) error
	History(id uuid.UUID) ([]domain.StatusHistoryEntry, error)
	Delete(id uuid.UUID) error
}

type TransactionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewTransactionRepository(db *badger.DB, log *slog.Logger) TransactionRepository {
	return TransactionRepository{db: db, log: log}
}

func (r TransactionRepository) Create(t domain.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(txnKey(t.ID), data)
	})
}

func (r TransactionRepository) Get(id uuid.UUID) (domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := getTransaction(txn, id)
		if err != nil {
			return err
		}
		t = found
		return nil
	})
	return t, err
}

func (r TransactionRepository) List(filter TransactionFilter) ([]domain.Transaction, error) {
	var res []domain.Transaction
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("txn:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t domain.Transaction
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return err
			}
			if matchTransaction(t, filter) {
				res = append(res, t)
			}
		}
		return nil
	})
	return res, err
}

func matchTransaction(t domain.Transaction, filter TransactionFilter) bool {
	if filter.ParticipantID != "" && !t.IsParticipant(filter.ParticipantID) {
		return false
	}
	if filter.Status != "" && t.Status != filter.Status {
		return false
	}
	if filter.Type != "" && t.Type != filter.Type {
		return false
	}
	return true
}

// UpdateStatus is the compare-and-swap on the status field. The status
// change and its history entry are committed in one transaction: a
// concurrent update loses with a state conflict, never a divergent
// second winner. The optional mutate hook stamps dates and amounts under
// the same commit.
func (r TransactionRepository) UpdateStatus(id uuid.UUID, expected domain.TransactionStatus,
	entry domain.StatusHistoryEntry, mutate func(*domain.Transaction)) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		t, err := getTransaction(txn, id)
		if err != nil {
			return err
		}
		if t.Status != expected {
			return apperrors.NewStateConflict(string(expected), string(t.Status))
		}
		t.Status = entry.NewStatus
		if mutate != nil {
			mutate(&t)
		}
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err = txn.Set(txnKey(id), data); err != nil {
			return err
		}
		entryData, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(histKey(id, entry.CreatedAt, entry.ID), entryData)
	})
	if stderrors.Is(err, badger.ErrConflict) {
		// Lost the commit race against a concurrent status update.
		return apperrors.NewStateConflict(string(expected), "concurrently updated")
	}
	return err
}

func (r TransactionRepository) History(id uuid.UUID) ([]domain.StatusHistoryEntry, error) {
	var entries []domain.StatusHistoryEntry
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := histPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry domain.StatusHistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Delete removes the transaction and cascades over its offers,
// milestones, history, and messages. Attachment cleanup belongs to the
// caller, which knows the attachment store.
func (r TransactionRepository) Delete(id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := getTransaction(txn, id); err != nil {
			return err
		}

		var doomed [][]byte
		collect := func(prefix []byte, resolve func(item *badger.Item) ([][]byte, error)) error {
			it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: resolve != nil})
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				doomed = append(doomed, it.Item().KeyCopy(nil))
				if resolve == nil {
					continue
				}
				extra, err := resolve(it.Item())
				if err != nil {
					return err
				}
				doomed = append(doomed, extra...)
			}
			return nil
		}

		// Index entries resolve to the primary keys they point at.
		resolvePrimary := func(item *badger.Item) ([][]byte, error) {
			var primary [][]byte
			err := item.Value(func(val []byte) error {
				primary = append(primary, append([]byte(nil), val...))
				return nil
			})
			return primary, err
		}

		if err := collect(offerIdxPrefix(id), resolvePrimary); err != nil {
			return err
		}
		if err := collect(milestoneIdxPrefix(id), resolvePrimary); err != nil {
			return err
		}
		if err := collect(histPrefix(id), nil); err != nil {
			return err
		}

		// Messages are keyed by time, not transaction; filter by value.
		resolveMessage := func(item *badger.Item) error {
			var m domain.Message
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			if m.TransactionID != nil && *m.TransactionID == id {
				doomed = append(doomed, item.KeyCopy(nil), messageIdxKey(m.ID))
			}
			return nil
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
			if err := resolveMessage(it.Item()); err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		doomed = append(doomed, txnKey(id))
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		r.log.Debug("Transaction deleted with cascade", "id", id, "keys", len(doomed))
		return nil
	})
}

func getTransaction(txn *badger.Txn, id uuid.UUID) (domain.Transaction, error) {
	var t domain.Transaction
	item, err := txn.Get(txnKey(id))
	if err != nil {
		return t, asNotFound(err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	})
	return t, err
}

var _ ITransactionRepository = (*TransactionRepository)(nil)

// EntryAt builds a history record for a transition at a given time.
func EntryAt(txnID uuid.UUID, from, to domain.TransactionStatus, changedBy, notes string, at time.Time) domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{
		ID:             uuid.New(),
		TransactionID:  txnID,
		PreviousStatus: from,
		NewStatus:      to,
		ChangedBy:      changedBy,
		Notes:          notes,
		CreatedAt:      at,
	}
}
