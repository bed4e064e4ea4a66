package repositories

import (
	stderrors "errors"
	"fmt"
	"time"

	apperrors "deal-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout. Timestamps use 19-digit zero padding so a prefix scan
// yields chronological order (lexicographical = temporal).
//
//	txn:{id}                          Transaction
//	hist:{txnID}:{ts}:{entryID}       StatusHistoryEntry (append-only)
//	offer:{id}                        Offer
//	idx:offer:{txnID}:{ts}:{id}       offer ids per transaction, time-sorted
//	ms:{id}                           Milestone
//	idx:ms:{txnID}:{order}:{id}       milestone ids per transaction, by index
//	msg:{ts}:{id}                     Message, globally time-sorted
//	idx:msg:{id}                      message id -> primary key
func txnKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("txn:%s", id))
}

func histKey(txnID uuid.UUID, at time.Time, entryID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("hist:%s:%019d:%s", txnID, at.UnixNano(), entryID))
}

func histPrefix(txnID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("hist:%s:", txnID))
}

func offerKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("offer:%s", id))
}

func offerIdxKey(txnID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:offer:%s:%019d:%s", txnID, at.UnixNano(), id))
}

func offerIdxPrefix(txnID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:offer:%s:", txnID))
}

func milestoneKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("ms:%s", id))
}

func milestoneIdxKey(txnID uuid.UUID, order int, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:ms:%s:%05d:%s", txnID, order, id))
}

func milestoneIdxPrefix(txnID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:ms:%s:", txnID))
}

func messageKey(at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%019d:%s", at.UnixNano(), id))
}

func messageIdxKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:msg:%s", id))
}

var messagePrefix = []byte("msg:")

// asNotFound converts badger's missing-key error into the shared taxonomy.
func asNotFound(err error) error {
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	return err
}
