package domain

import "github.com/google/uuid"

// RoomID identifies a transaction-scoped broadcast room.
type RoomID string

func Room(transactionID uuid.UUID) RoomID {
	return RoomID(transactionID.String())
}
