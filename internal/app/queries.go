package app

import (
	"context"
	"fmt"
	"time"

	"hostel_booking/internal/domain"
)

// QueryService serves the read paths with a cache in front. The cache is
// never consulted by the write transaction: every booking decision is made
// against a freshly locked read inside the repository.
type QueryService struct {
	rooms    domain.RoomRepository
	bookings domain.BookingRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(rooms domain.RoomRepository, bookings domain.BookingRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{rooms: rooms, bookings: bookings, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	key := fmt.Sprintf("room:%d", id)
	var rm domain.Room
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &rm); ok {
			return rm, nil
		}
	}
	rm, err := s.rooms.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, rm, s.cacheTTL)
	}
	return rm, nil
}

func (s *QueryService) ListRooms(ctx context.Context, q domain.RoomsQuery) (domain.RoomsPage, error) {
	// Uncached: the list is small and filters vary per caller.
	return s.rooms.ListRooms(ctx, q)
}

func (s *QueryService) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	return s.bookings.GetBooking(ctx, id)
}

func (s *QueryService) ListRoomBookings(ctx context.Context, roomID int64, pg domain.PageQuery) (domain.BookingsPage, error) {
	var key string
	var out domain.BookingsPage
	if s.cache != nil && !pg.IncludeClosed {
		key = fmt.Sprintf("room_bookings:%d:%d:%d", roomID, s.roomEpoch(ctx, roomID), pg.Limit)
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	out, err := s.bookings.ListRoomBookings(ctx, roomID, pg)
	if err != nil {
		return domain.BookingsPage{}, err
	}
	if s.cache != nil && !pg.IncludeClosed {
		_ = s.cache.Set(ctx, key, copyBookingsPage(out), s.cacheTTL)
	}
	return out, nil
}

// roomEpoch returns the room's current list epoch, minting one if the cache
// has none. List keys embed the epoch, so a writer invalidates every cached
// page for the room, whatever its limit, by deleting the single epoch key;
// entries minted under the old epoch are never read again and age out with
// the TTL.
func (s *QueryService) roomEpoch(ctx context.Context, roomID int64) int64 {
	key := roomBookingsEpochKey(roomID)
	var epoch int64
	if ok, _ := s.cache.Get(ctx, key, &epoch); ok {
		return epoch
	}
	epoch = time.Now().UnixNano()
	_ = s.cache.Set(ctx, key, epoch, s.cacheTTL)
	return epoch
}

func roomBookingsEpochKey(roomID int64) string {
	return fmt.Sprintf("room_bookings_epoch:%d", roomID)
}

// copyBookingsPage detaches the cached value from the repo's backing array.
func copyBookingsPage(in domain.BookingsPage) domain.BookingsPage {
	out := domain.BookingsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Booking, n)
		copy(out.Items, in.Items)
	}
	return out
}
