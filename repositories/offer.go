//go:generate go run go.uber.org/mock/mockgen -source=offer.go -destination=../mocks/mock_offer_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"deal-lab/domain"
	apperrors "deal-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IOfferRepository interface {
	Create(o domain.Offer) error
	Get(id uuid.UUID) (domain.Offer, error)
	ListByTransaction(txnID uuid.UUID) ([]domain.Offer, error)
	UpdateStatus(id uuid.UUID, expected, next domain.OfferStatus, counter *domain.Offer) error
}

type OfferRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewOfferRepository(db *badger.DB, log *slog.Logger) OfferRepository {
	return OfferRepository{db: db, log: log}
}

func (r OfferRepository) Create(o domain.Offer) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return putOffer(txn, o)
	})
}

func (r OfferRepository) Get(id uuid.UUID) (domain.Offer, error) {
	var o domain.Offer
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := getOffer(txn, id)
		if err != nil {
			return err
		}
		o = found
		return nil
	})
	return o, err
}

// ListByTransaction returns the transaction's whole offer chain in
// creation order, via the time-sorted index.
func (r OfferRepository) ListByTransaction(txnID uuid.UUID) ([]domain.Offer, error) {
	var offers []domain.Offer
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := offerIdxPrefix(txnID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var primary []byte
			err := it.Item().Value(func(val []byte) error {
				primary = append([]byte(nil), val...)
				return nil
			})
			if err != nil {
				return err
			}
			item, err := txn.Get(primary)
			if err != nil {
				return asNotFound(err)
			}
			var o domain.Offer
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &o)
			})
			if err != nil {
				return err
			}
			offers = append(offers, o)
		}
		return nil
	})
	return offers, err
}

// UpdateStatus is the compare-and-swap on (offer id, expected status).
// When next is COUNTERED the counter-offer is written under the same
// commit: the original flips and the child appears together, or neither
// does. Accepting also re-checks the one-accepted-sibling invariant
// inside the transaction.
func (r OfferRepository) UpdateStatus(id uuid.UUID, expected, next domain.OfferStatus, counter *domain.Offer) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		o, err := getOffer(txn, id)
		if err != nil {
			return err
		}
		if o.Status != expected {
			return apperrors.NewStateConflict(string(expected), string(o.Status))
		}
		if next == domain.OfferAccepted {
			if err = ensureNoAcceptedSibling(txn, o.TransactionID, id); err != nil {
				return err
			}
		}
		o.Status = next
		if err = putOffer(txn, o); err != nil {
			return err
		}
		if counter != nil {
			return putOffer(txn, *counter)
		}
		return nil
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return apperrors.NewStateConflict(string(expected), "concurrently updated")
	}
	return err
}

func ensureNoAcceptedSibling(txn *badger.Txn, txnID, exclude uuid.UUID) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := offerIdxPrefix(txnID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var primary []byte
		err := it.Item().Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		})
		if err != nil {
			return err
		}
		item, err := txn.Get(primary)
		if err != nil {
			return asNotFound(err)
		}
		var sibling domain.Offer
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sibling)
		})
		if err != nil {
			return err
		}
		if sibling.ID != exclude && sibling.Status == domain.OfferAccepted {
			return fmt.Errorf("%w: transaction %s already has an accepted offer", apperrors.ErrInvalidState, txnID)
		}
	}
	return nil
}

func putOffer(txn *badger.Txn, o domain.Offer) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err = txn.Set(offerKey(o.ID), data); err != nil {
		return err
	}
	return txn.Set(offerIdxKey(o.TransactionID, o.CreatedAt, o.ID), offerKey(o.ID))
}

func getOffer(txn *badger.Txn, id uuid.UUID) (domain.Offer, error) {
	var o domain.Offer
	item, err := txn.Get(offerKey(id))
	if err != nil {
		return o, asNotFound(err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &o)
	})
	return o, err
}

var _ IOfferRepository = (*OfferRepository)(nil)
