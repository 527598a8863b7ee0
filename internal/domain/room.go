package domain

import "time"

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomMaintenance:
		return true
	}
	return false
}

// Room is the unit of contention: every booking write locks its room row first.
// LockVersion starts at 1 and increments by exactly one per successful update.
type Room struct {
	ID          int64
	Name        string
	Price       float64
	MaxGuests   int
	Status      RoomStatus
	LockVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoomChanges carries a partial room edit. Nil fields are left untouched.
type RoomChanges struct {
	Name      *string
	Price     *float64
	MaxGuests *int
	Status    *RoomStatus
}

func (c RoomChanges) Empty() bool {
	return c.Name == nil && c.Price == nil && c.MaxGuests == nil && c.Status == nil
}
