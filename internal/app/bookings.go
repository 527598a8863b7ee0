package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hostel_booking/internal/adapters/observability"
	"hostel_booking/internal/domain"
)

// BookingService owns the write side of bookings: validation before any lock,
// the deadlock-retry loop around the repository's locked transaction, and
// cache invalidation after a successful write.
type BookingService struct {
	bookings domain.BookingRepository
	cache    domain.Cache

	now         func() time.Time
	maxAttempts int
	baseDelay   time.Duration
}

type BookingOption func(*BookingService)

// WithRetryPolicy overrides the deadlock-retry budget.
func WithRetryPolicy(attempts int, baseDelay time.Duration) BookingOption {
	return func(s *BookingService) {
		s.maxAttempts = attempts
		s.baseDelay = baseDelay
	}
}

// WithClock pins "today" for the past-date check.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

func NewBookingService(repo domain.BookingRepository, cache domain.Cache, opts ...BookingOption) *BookingService {
	s := &BookingService{
		bookings:    repo,
		cache:       cache,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BookingService) Create(ctx context.Context, roomID int64, checkIn, checkOut time.Time, guest domain.GuestInfo) (domain.Booking, error) {
	checkIn, checkOut = domain.Day(checkIn), domain.Day(checkOut)
	if err := s.validateRange(checkIn, checkOut); err != nil {
		observability.ObserveBookingWrite("create", "validation")
		return domain.Booking{}, err
	}

	b := domain.Booking{
		RoomID:     roomID,
		UserID:     guest.UserID,
		GuestName:  guest.Name,
		GuestEmail: guest.Email,
		Reference:  uuid.NewString(),
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Status:     domain.BookingPending,
	}
	out, err := withRetry(ctx, s.maxAttempts, s.baseDelay, func(ctx context.Context) (domain.Booking, error) {
		return s.bookings.CreateBooking(ctx, b)
	})
	observability.ObserveBookingWrite("create", outcomeLabel(err))
	if err != nil {
		s.logWriteFailure("create booking", err, roomID)
		return domain.Booking{}, err
	}
	s.invalidateRoomBookings(ctx, roomID)
	log.Info().Int64("booking_id", out.ID).Int64("room_id", roomID).
		Str("reference", out.Reference).Msg("booking created")
	return out, nil
}

func (s *BookingService) Update(ctx context.Context, bookingID, roomID int64, checkIn, checkOut time.Time, guest domain.GuestInfo) (domain.Booking, error) {
	checkIn, checkOut = domain.Day(checkIn), domain.Day(checkOut)
	if err := s.validateRange(checkIn, checkOut); err != nil {
		observability.ObserveBookingWrite("update", "validation")
		return domain.Booking{}, err
	}

	b := domain.Booking{
		ID:         bookingID,
		RoomID:     roomID,
		UserID:     guest.UserID,
		GuestName:  guest.Name,
		GuestEmail: guest.Email,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
	}
	out, err := withRetry(ctx, s.maxAttempts, s.baseDelay, func(ctx context.Context) (domain.Booking, error) {
		return s.bookings.UpdateBooking(ctx, b)
	})
	observability.ObserveBookingWrite("update", outcomeLabel(err))
	if err != nil {
		s.logWriteFailure("update booking", err, roomID)
		return domain.Booking{}, err
	}
	s.invalidateRoomBookings(ctx, roomID)
	log.Info().Int64("booking_id", out.ID).Int64("room_id", roomID).Msg("booking updated")
	return out, nil
}

// Cancel soft-deletes the booking, which frees its range for the next
// availability check. Cancelling an already cancelled booking reports
// ErrNotFound: the live row is gone.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actorID *int64) error {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		observability.ObserveBookingWrite("cancel", outcomeLabel(err))
		return err
	}
	if err := s.bookings.CancelBooking(ctx, bookingID, actorID); err != nil {
		observability.ObserveBookingWrite("cancel", outcomeLabel(err))
		return err
	}
	observability.ObserveBookingWrite("cancel", "ok")
	s.invalidateRoomBookings(ctx, b.RoomID)
	log.Info().Int64("booking_id", bookingID).Int64("room_id", b.RoomID).Msg("booking cancelled")
	return nil
}

func (s *BookingService) validateRange(checkIn, checkOut time.Time) error {
	if !checkOut.After(checkIn) {
		return &domain.ValidationError{Field: "check_out", Reason: "must be after check_in"}
	}
	if checkIn.Before(domain.Day(s.now())) {
		return &domain.ValidationError{Field: "check_in", Reason: "must not be in the past"}
	}
	return nil
}

func (s *BookingService) logWriteFailure(op string, err error, roomID int64) {
	var ex *domain.ConcurrencyExhaustedError
	if errors.As(err, &ex) {
		// Retries exhausted under sustained contention; this is the
		// backpressure signal, so it gets logged loudly.
		log.Error().Err(err).Int64("room_id", roomID).Int("attempts", ex.Attempts).
			Msgf("%s: retry budget exhausted", op)
	}
}

func (s *BookingService) invalidateRoomBookings(ctx context.Context, roomID int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, roomBookingsEpochKey(roomID))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		var ve *domain.ValidationError
		var ce *domain.ConflictError
		var ex *domain.ConcurrencyExhaustedError
		switch {
		case errors.As(err, &ve):
			return "validation"
		case errors.As(err, &ce):
			return "conflict"
		case errors.As(err, &ex):
			return "exhausted"
		}
		return "error"
	}
}
