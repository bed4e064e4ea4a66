// Package projection builds read-side views from persisted records.
// Handles ordering and merging; it does not emit events or mutate state.
package projection

import (
	"fmt"
	"sort"
	"time"

	"deal-lab/domain"
)

type EntryKind string

const (
	EntryStatus    EntryKind = "status"
	EntryMilestone EntryKind = "milestone"
	EntryOffer     EntryKind = "offer"
)

// Entry is one line of a transaction timeline.
type Entry struct {
	At    time.Time
	Kind  EntryKind
	Actor string
	Label string
}

// Timeline merges status history, milestone completions, and offer
// events into one time-sorted view. Pending milestones are not part of
// the timeline; only completions are.
func Timeline(history []domain.StatusHistoryEntry, milestones []domain.Milestone, offers []domain.Offer, now time.Time) []Entry {
	var entries []Entry

	for _, h := range history {
		entries = append(entries, Entry{
			At:    h.CreatedAt,
			Kind:  EntryStatus,
			Actor: h.ChangedBy,
			Label: fmt.Sprintf("status %s -> %s", h.PreviousStatus, h.NewStatus),
		})
	}
	for _, m := range milestones {
		if !m.Completed() {
			continue
		}
		entries = append(entries, Entry{
			At:    *m.CompletedAt,
			Kind:  EntryMilestone,
			Actor: m.CompletedBy,
			Label: fmt.Sprintf("milestone completed: %s", m.Title),
		})
	}
	for _, o := range offers {
		entries = append(entries, Entry{
			At:    o.CreatedAt,
			Kind:  EntryOffer,
			Actor: o.OffererID,
			Label: fmt.Sprintf("offer %.2f %s (%s)", o.Amount, o.Currency, domain.EffectiveStatus(o, now)),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.Before(entries[j].At)
	})
	return entries
}
