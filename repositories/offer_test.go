package repositories

import (
	"testing"
	"time"

	"deal-lab/domain"
	apperrors "deal-lab/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func anOffer(txnID uuid.UUID, offererID string, at time.Time) domain.Offer {
	return domain.Offer{
		ID:            uuid.New(),
		TransactionID: txnID,
		OffererID:     offererID,
		Amount:        240_000,
		Currency:      "EUR",
		Status:        domain.OfferPending,
		CreatedAt:     at,
	}
}

func Test_Offer_Chain_Sorted_By_Creation(t *testing.T) {
	req := require.New(t)
	repo := NewOfferRepository(newTestDB(t), testLogger())
	txnID := uuid.New()
	at := time.Now().UTC()

	first := anOffer(txnID, "alice", at)
	second := anOffer(txnID, "bob", at.Add(time.Minute))
	third := anOffer(txnID, "alice", at.Add(2*time.Minute))
	// Insert out of order on purpose
	req.NoError(repo.Create(third))
	req.NoError(repo.Create(first))
	req.NoError(repo.Create(second))

	offers, err := repo.ListByTransaction(txnID)
	req.NoError(err)
	req.Len(offers, 3)
	req.Equal(first.ID, offers[0].ID)
	req.Equal(second.ID, offers[1].ID)
	req.Equal(third.ID, offers[2].ID)
}

func Test_Offer_Two_Responses_Single_Winner(t *testing.T) {
	req := require.New(t)
	repo := NewOfferRepository(newTestDB(t), testLogger())
	offer := anOffer(uuid.New(), "alice", time.Now().UTC())
	req.NoError(repo.Create(offer))

	// When two responders race on the same pending offer
	first := repo.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferAccepted, nil)
	second := repo.UpdateStatus(offer.ID, domain.OfferPending, domain.OfferRejected, nil)

	// Then exactly one wins and the loser sees the actual status
	req.NoError(first)
	req.ErrorIs(second, apperrors.ErrInvalidState)

	var conflict *apperrors.StateConflictError
	req.ErrorAs(second, &conflict)
	req.Equal(string(domain.OfferPending), conflict.Expected)
	req.Equal(string(domain.OfferAccepted), conflict.Actual)

	fetched, err := repo.Get(offer.ID)
	req.NoError(err)
	req.Equal(domain.OfferAccepted, fetched.Status)
}

func Test_Offer_Counter_Writes_Child_In_Same_Commit(t *testing.T) {
	req := require.New(t)
	repo := NewOfferRepository(newTestDB(t), testLogger())
	txnID := uuid.New()
	at := time.Now().UTC()
	parent := anOffer(txnID, "alice", at)
	req.NoError(repo.Create(parent))

	counter := anOffer(txnID, "bob", at.Add(time.Minute))
	counter.ParentOfferID = &parent.ID

	// When countering the pending offer
	req.NoError(repo.UpdateStatus(parent.ID, domain.OfferPending, domain.OfferCountered, &counter))

	// Then the parent flipped and the child exists
	fetchedParent, err := repo.Get(parent.ID)
	req.NoError(err)
	req.Equal(domain.OfferCountered, fetchedParent.Status)

	fetchedCounter, err := repo.Get(counter.ID)
	req.NoError(err)
	req.Equal(domain.OfferPending, fetchedCounter.Status)
	req.Equal(parent.ID, *fetchedCounter.ParentOfferID)
}

func Test_Offer_Counter_On_Settled_Offer_Writes_Nothing(t *testing.T) {
	req := require.New(t)
	repo := NewOfferRepository(newTestDB(t), testLogger())
	txnID := uuid.New()
	at := time.Now().UTC()
	parent := anOffer(txnID, "alice", at)
	req.NoError(repo.Create(parent))
	req.NoError(repo.UpdateStatus(parent.ID, domain.OfferPending, domain.OfferRejected, nil))

	counter := anOffer(txnID, "bob", at.Add(time.Minute))
	counter.ParentOfferID = &parent.ID

	// When countering an offer that is no longer pending
	err := repo.UpdateStatus(parent.ID, domain.OfferPending, domain.OfferCountered, &counter)

	// Then the conflict aborts the whole commit: no orphan counter-offer
	req.ErrorIs(err, apperrors.ErrInvalidState)
	_, err = repo.Get(counter.ID)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_Offer_Accept_Refused_When_Sibling_Already_Accepted(t *testing.T) {
	req := require.New(t)
	repo := NewOfferRepository(newTestDB(t), testLogger())
	txnID := uuid.New()
	at := time.Now().UTC()

	accepted := anOffer(txnID, "alice", at)
	pending := anOffer(txnID, "bob", at.Add(time.Minute))
	req.NoError(repo.Create(accepted))
	req.NoError(repo.Create(pending))
	req.NoError(repo.UpdateStatus(accepted.ID, domain.OfferPending, domain.OfferAccepted, nil))

	// When accepting a second offer on the same transaction
	err := repo.UpdateStatus(pending.ID, domain.OfferPending, domain.OfferAccepted, nil)

	// Then the one-accepted-offer invariant holds
	req.ErrorIs(err, apperrors.ErrInvalidState)
	fetched, err := repo.Get(pending.ID)
	req.NoError(err)
	req.Equal(domain.OfferPending, fetched.Status)
}
