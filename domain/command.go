package domain

import (
	"time"

	"github.com/google/uuid"
)

// Command is an inbound client intent on the real-time channel.
// Transport framing stays outside the domain; handlers receive these
// typed commands instead of raw socket callbacks.
type Command interface {
	RoomID() RoomID
}

type JoinRoomCommand struct {
	TransactionID uuid.UUID
	UserID        string
}

func (c JoinRoomCommand) RoomID() RoomID {
	return Room(c.TransactionID)
}

type LeaveRoomCommand struct {
	TransactionID uuid.UUID
	UserID        string
}

func (c LeaveRoomCommand) RoomID() RoomID {
	return Room(c.TransactionID)
}

type StartTypingCommand struct {
	TransactionID uuid.UUID
	UserID        string
	At            time.Time
}

func (c StartTypingCommand) RoomID() RoomID {
	return Room(c.TransactionID)
}

type StopTypingCommand struct {
	TransactionID uuid.UUID
	UserID        string
	At            time.Time
}

func (c StopTypingCommand) RoomID() RoomID {
	return Room(c.TransactionID)
}
