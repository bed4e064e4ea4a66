package domain

import (
	"time"

	"github.com/google/uuid"
)

// Milestone is a named, orderable checkpoint of a transaction workflow.
// CompletedAt and CompletedBy stay nil/empty until completion; once set,
// CompletedAt is immutable.
type Milestone struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Title         string
	Description   string
	DueDate       *time.Time
	Required      bool
	OrderIndex    int
	CompletedAt   *time.Time
	CompletedBy   string
	CreatedAt     time.Time
}

func (m Milestone) Completed() bool {
	return m.CompletedAt != nil
}

// Progress is the cumulative completion state of a transaction's milestones.
type Progress struct {
	Completed int
	Total     int
}

// Percent returns completed/total as a percentage. Zero milestones means
// zero percent, not a division error.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}
