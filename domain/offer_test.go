package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_EffectiveStatus_Expiry_Is_Lazy(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	cases := []struct {
		name       string
		status     OfferStatus
		validUntil *time.Time
		expected   OfferStatus
	}{
		{"pending without deadline stays pending", OfferPending, nil, OfferPending},
		{"pending before deadline stays pending", OfferPending, lo.ToPtr(now.Add(time.Hour)), OfferPending},
		{"pending past deadline reads expired", OfferPending, lo.ToPtr(now.Add(-time.Hour)), OfferExpired},
		{"pending exactly at deadline reads expired", OfferPending, lo.ToPtr(now), OfferExpired},
		{"accepted never expires", OfferAccepted, lo.ToPtr(now.Add(-time.Hour)), OfferAccepted},
		{"rejected never expires", OfferRejected, lo.ToPtr(now.Add(-time.Hour)), OfferRejected},
		{"countered never expires", OfferCountered, lo.ToPtr(now.Add(-time.Hour)), OfferCountered},
		{"withdrawn never expires", OfferWithdrawn, lo.ToPtr(now.Add(-time.Hour)), OfferWithdrawn},
	}
	for _, c := range cases {
		offer := Offer{Status: c.status, ValidUntil: c.validUntil}
		req.Equal(c.expected, EffectiveStatus(offer, now), c.name)
	}
}

func Test_OfferStatus_Terminal(t *testing.T) {
	req := require.New(t)

	req.False(OfferPending.Terminal())
	req.True(OfferAccepted.Terminal())
	req.True(OfferRejected.Terminal())
	req.True(OfferCountered.Terminal())
	req.True(OfferWithdrawn.Terminal())
	req.True(OfferExpired.Terminal())
}

func Test_BuildOfferTree_Chains_And_Roots(t *testing.T) {
	req := require.New(t)

	root := Offer{ID: uuid.New()}
	counter := Offer{ID: uuid.New(), ParentOfferID: &root.ID}
	counterOfCounter := Offer{ID: uuid.New(), ParentOfferID: &counter.ID}
	independent := Offer{ID: uuid.New()}

	tree := BuildOfferTree([]Offer{root, counter, counterOfCounter, independent})

	req.ElementsMatch([]uuid.UUID{root.ID, independent.ID}, tree.Roots)
	req.Equal([]uuid.UUID{counter.ID}, tree.Children[root.ID])
	req.Equal([]uuid.UUID{counterOfCounter.ID}, tree.Children[counter.ID])
	req.Empty(tree.Children[counterOfCounter.ID])
	req.Len(tree.Offers, 4)
}

func Test_BuildOfferTree_Missing_Parent_Becomes_Root(t *testing.T) {
	req := require.New(t)

	ghost := uuid.New()
	orphan := Offer{ID: uuid.New(), ParentOfferID: &ghost}

	tree := BuildOfferTree([]Offer{orphan})

	req.Equal([]uuid.UUID{orphan.ID}, tree.Roots)
}
