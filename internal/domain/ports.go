package domain

import (
	"context"
	"time"
)

type BookingRepository interface {
	// Write paths. Create and Update run the pessimistic protocol: lock the
	// room row, re-check availability under the lock, then mutate. Both can
	// fail with *ConflictError, or with an ErrTxnTransient-wrapped error the
	// caller is expected to retry from scratch.
	CreateBooking(ctx context.Context, b Booking) (Booking, error)
	UpdateBooking(ctx context.Context, b Booking) (Booking, error)
	CancelBooking(ctx context.Context, id int64, actorID *int64) error

	// Read paths
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListRoomBookings(ctx context.Context, roomID int64, pg PageQuery) (BookingsPage, error)
	ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)
}

type RoomRepository interface {
	GetRoom(ctx context.Context, id int64) (Room, error)
	ListRooms(ctx context.Context, q RoomsQuery) (RoomsPage, error)

	// UpdateRoom is the optimistic path: a single conditional UPDATE guarded
	// by expectedVersion. Fails with *StaleVersionError when a concurrent
	// writer got there first, ErrNotFound when the room does not exist.
	UpdateRoom(ctx context.Context, id int64, ch RoomChanges, expectedVersion int64) (Room, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type RoomsQuery struct {
	Status *RoomStatus
	Limit  int
}

type PageQuery struct {
	Limit         int
	IncludeClosed bool // include cancelled and soft-deleted rows
}

type RoomsPage struct {
	Items []Room
}

type BookingsPage struct {
	Items []Booking
}
