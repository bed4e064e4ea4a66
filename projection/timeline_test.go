package projection

import (
	"testing"
	"time"

	"deal-lab/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Timeline_Merges_And_Sorts(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	txnID := uuid.New()

	history := []domain.StatusHistoryEntry{
		{
			TransactionID:  txnID,
			PreviousStatus: domain.TransactionPending,
			NewStatus:      domain.TransactionAccepted,
			ChangedBy:      "bob",
			CreatedAt:      now.Add(2 * time.Minute),
		},
	}
	milestones := []domain.Milestone{
		{
			TransactionID: txnID,
			Title:         "Inspection",
			CompletedAt:   lo.ToPtr(now.Add(3 * time.Minute)),
			CompletedBy:   "alice",
		},
		// Pending milestones never appear on the timeline
		{TransactionID: txnID, Title: "Financing"},
	}
	offers := []domain.Offer{
		{
			TransactionID: txnID,
			OffererID:     "alice",
			Amount:        240_000,
			Currency:      "EUR",
			Status:        domain.OfferAccepted,
			CreatedAt:     now.Add(time.Minute),
		},
	}

	entries := Timeline(history, milestones, offers, now.Add(time.Hour))

	req.Len(entries, 3)
	req.Equal(EntryOffer, entries[0].Kind)
	req.Equal(EntryStatus, entries[1].Kind)
	req.Equal(EntryMilestone, entries[2].Kind)
	req.Equal("alice", entries[2].Actor)
	req.Contains(entries[1].Label, "PENDING -> ACCEPTED")
	req.Contains(entries[0].Label, "240000.00 EUR")
}

func Test_Timeline_Offer_Label_Uses_Effective_Status(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	offers := []domain.Offer{
		{
			OffererID:  "alice",
			Amount:     100_000,
			Currency:   "EUR",
			Status:     domain.OfferPending,
			ValidUntil: lo.ToPtr(now.Add(-time.Minute)),
			CreatedAt:  now.Add(-time.Hour),
		},
	}

	entries := Timeline(nil, nil, offers, now)

	req.Len(entries, 1)
	req.Contains(entries[0].Label, string(domain.OfferExpired))
}

func Test_Timeline_Empty_Inputs(t *testing.T) {
	require.Empty(t, Timeline(nil, nil, nil, time.Now()))
}
