package domain

import (
	"time"

	"github.com/google/uuid"
)

type OfferStatus string

const (
	OfferPending   OfferStatus = "PENDING"
	OfferAccepted  OfferStatus = "ACCEPTED"
	OfferRejected  OfferStatus = "REJECTED"
	OfferCountered OfferStatus = "COUNTERED"
	OfferWithdrawn OfferStatus = "WITHDRAWN"
	OfferExpired   OfferStatus = "EXPIRED"
)

// Decision is the verb a responder applies to a pending offer.
type Decision string

const (
	DecisionAccept   Decision = "ACCEPT"
	DecisionReject   Decision = "REJECT"
	DecisionCounter  Decision = "COUNTER"
	DecisionWithdraw Decision = "WITHDRAW"
)

// Offer is one node of the counter-offer chain on a transaction.
// ParentOfferID links a counter-offer to the offer it replaces, forming
// a tree rooted at the first offer.
type Offer struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	OffererID     string
	Amount        float64
	Currency      string
	Message       string
	Conditions    []string
	ValidUntil    *time.Time
	ParentOfferID *uuid.UUID
	Status        OfferStatus
	CreatedAt     time.Time
}

func (s OfferStatus) Terminal() bool {
	return s != OfferPending
}

// EffectiveStatus is the single place expiry is decided. A PENDING offer
// whose ValidUntil has elapsed reads as EXPIRED; the stored status is
// never eagerly rewritten.
func EffectiveStatus(o Offer, now time.Time) OfferStatus {
	if o.Status == OfferPending && o.ValidUntil != nil && !now.Before(*o.ValidUntil) {
		return OfferExpired
	}
	return o.Status
}

// OfferTree is an arena-style view of an offer chain: plain maps keyed
// by id, no live back-pointers between offers.
type OfferTree struct {
	Roots    []uuid.UUID
	Children map[uuid.UUID][]uuid.UUID
	Offers   map[uuid.UUID]Offer
}

// BuildOfferTree indexes a transaction's offers by parent linkage.
// Offers whose parent is absent from the slice are treated as roots.
func BuildOfferTree(offers []Offer) OfferTree {
	tree := OfferTree{
		Children: make(map[uuid.UUID][]uuid.UUID),
		Offers:   make(map[uuid.UUID]Offer, len(offers)),
	}
	for _, o := range offers {
		tree.Offers[o.ID] = o
	}
	for _, o := range offers {
		if o.ParentOfferID == nil {
			tree.Roots = append(tree.Roots, o.ID)
			continue
		}
		parent := *o.ParentOfferID
		if _, ok := tree.Offers[parent]; !ok {
			tree.Roots = append(tree.Roots, o.ID)
			continue
		}
		tree.Children[parent] = append(tree.Children[parent], o.ID)
	}
	return tree
}
