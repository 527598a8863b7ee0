package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"hostel_booking/internal/adapters/observability"
	"hostel_booking/internal/domain"
)

// RoomService handles room attribute edits over the optimistic path. No lock,
// no retry: on a stale version the caller refetches and resubmits.
type RoomService struct {
	rooms domain.RoomRepository
	cache domain.Cache
}

func NewRoomService(repo domain.RoomRepository, cache domain.Cache) *RoomService {
	return &RoomService{rooms: repo, cache: cache}
}

func (s *RoomService) Update(ctx context.Context, roomID int64, ch domain.RoomChanges, expectedVersion int64) (domain.Room, error) {
	if err := validateChanges(ch, expectedVersion); err != nil {
		observability.ObserveBookingWrite("room_update", "validation")
		return domain.Room{}, err
	}
	room, err := s.rooms.UpdateRoom(ctx, roomID, ch, expectedVersion)
	observability.ObserveBookingWrite("room_update", roomOutcomeLabel(err))
	if err != nil {
		return domain.Room{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, fmt.Sprintf("room:%d", roomID))
	}
	log.Info().Int64("room_id", roomID).Int64("lock_version", room.LockVersion).Msg("room updated")
	return room, nil
}

func validateChanges(ch domain.RoomChanges, expectedVersion int64) error {
	if expectedVersion < 1 {
		return &domain.ValidationError{Field: "expected_lock_version", Reason: "must be at least 1"}
	}
	if ch.Empty() {
		return &domain.ValidationError{Field: "changes", Reason: "no fields to update"}
	}
	if ch.Price != nil && *ch.Price < 0 {
		return &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if ch.MaxGuests != nil && *ch.MaxGuests < 1 {
		return &domain.ValidationError{Field: "max_guests", Reason: "must be at least 1"}
	}
	if ch.Status != nil && !ch.Status.Valid() {
		return &domain.ValidationError{Field: "status", Reason: "must be available, occupied or maintenance"}
	}
	return nil
}

func roomOutcomeLabel(err error) string {
	var sve *domain.StaleVersionError
	if errors.As(err, &sve) {
		return "stale_version"
	}
	return outcomeLabel(err)
}
