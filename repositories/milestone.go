//go:generate go run go.uber.org/mock/mockgen -source=milestone.go -destination=../mocks/mock_milestone_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"log/slog"
	"time"

	"deal-lab/domain"
	apperrors "deal-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMilestoneRepository interface {
	Create(m domain.Milestone) error
	Get(id uuid.UUID) (domain.Milestone, error)
	ListByTransaction(txnID uuid.UUID) ([]domain.Milestone, error)
	Complete(id uuid.UUID, completedBy string, at time.Time) (domain.Milestone, error)
	ProgressFor(txnID uuid.UUID) (domain.Progress, error)
}

type MilestoneRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMilestoneRepository(db *badger.DB, log *slog.Logger) MilestoneRepository {
	return MilestoneRepository{db: db, log: log}
}

func (r MilestoneRepository) Create(m domain.Milestone) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return putMilestone(txn, m)
	})
}

func (r MilestoneRepository) Get(id uuid.UUID) (domain.Milestone, error) {
	var m domain.Milestone
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := getMilestone(txn, id)
		if err != nil {
			return err
		}
		m = found
		return nil
	})
	return m, err
}

// ListByTransaction returns milestones ordered by their ordering index,
// courtesy of the zero-padded index key.
func (r MilestoneRepository) ListByTransaction(txnID uuid.UUID) ([]domain.Milestone, error) {
	var milestones []domain.Milestone
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := milestoneIdxPrefix(txnID)
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
			var m domain.Milestone
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			milestones = append(milestones, m)
		}
		return nil
	})
	return milestones, err
}

// Complete stamps the completion once. A second completion surfaces
// ErrAlreadyCompleted with the unchanged milestone so callers can treat
// it as an explicit idempotent outcome rather than silent data loss.
func (r MilestoneRepository) Complete(id uuid.UUID, completedBy string, at time.Time) (domain.Milestone, error) {
	var m domain.Milestone
	err := r.db.Update(func(txn *badger.Txn) error {
		found, err := getMilestone(txn, id)
		if err != nil {
			return err
		}
		m = found
		if m.Completed() {
			return apperrors.ErrAlreadyCompleted
		}
		m.CompletedAt = &at
		m.CompletedBy = completedBy
		return putMilestone(txn, m)
	})
	return m, err
}

func (r MilestoneRepository) ProgressFor(txnID uuid.UUID) (domain.Progress, error) {
	milestones, err := r.ListByTransaction(txnID)
	if err != nil {
		return domain.Progress{}, err
	}
	progress := domain.Progress{Total: len(milestones)}
	for _, m := range milestones {
		if m.Completed() {
			progress.Completed++
		}
	}
	return progress, nil
}

func putMilestone(txn *badger.Txn, m domain.Milestone) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err = txn.Set(milestoneKey(m.ID), data); err != nil {
		return err
	}
	return txn.Set(milestoneIdxKey(m.TransactionID, m.OrderIndex, m.ID), milestoneKey(m.ID))
}

func getMilestone(txn *badger.Txn, id uuid.UUID) (domain.Milestone, error) {
	var m domain.Milestone
	item, err := txn.Get(milestoneKey(id))
	if err != nil {
		return m, asNotFound(err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m, err
}

var _ IMilestoneRepository = (*MilestoneRepository)(nil)
