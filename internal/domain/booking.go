package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// DateLayout is the wire format for check-in/check-out dates.
const DateLayout = "2006-01-02"

type Booking struct {
	ID         int64
	RoomID     int64
	UserID     *int64 // nil for guest bookings
	GuestName  string
	GuestEmail string
	Reference  string
	CheckIn    time.Time
	CheckOut   time.Time
	Status     BookingStatus
	DeletedAt  *time.Time
	DeletedBy  *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Active reports whether the booking still occupies its date range.
func (b Booking) Active() bool {
	return b.DeletedAt == nil && (b.Status == BookingPending || b.Status == BookingConfirmed)
}

// GuestInfo is the caller-supplied identity attached to a booking write.
type GuestInfo struct {
	UserID *int64
	Name   string
	Email  string
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) share at least one night. A stay ending on the day another
// begins does not overlap it, so back-to-back bookings on the boundary date
// are both allowed. Inverted or empty ranges never reach this function;
// validation rejects them first.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Day strips the clock from t, keeping the calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
