package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hostel_booking/internal/app"
	"hostel_booking/internal/domain"
)

// ---- fakes ----

// fakeBookingRepo mimics the storage protocol in memory: the conflict check
// sees only active rows, and transientLeft injects deadlock-style failures.
type fakeBookingRepo struct {
	bookings map[int64]domain.Booking
	nextID   int64

	createCalls   int
	transientLeft int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: map[int64]domain.Booking{}}
}

func (f *fakeBookingRepo) conflicts(roomID int64, in, out time.Time, excludeID int64) bool {
	for _, b := range f.bookings {
		if b.RoomID != roomID || b.ID == excludeID || !b.Active() {
			continue
		}
		if domain.Overlaps(in, out, b.CheckIn, b.CheckOut) {
			return true
		}
	}
	return false
}

func (f *fakeBookingRepo) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	f.createCalls++
	if f.transientLeft > 0 {
		f.transientLeft--
		return domain.Booking{}, fmt.Errorf("%w: fake deadlock", domain.ErrTxnTransient)
	}
	if f.conflicts(b.RoomID, b.CheckIn, b.CheckOut, 0) {
		return domain.Booking{}, &domain.ConflictError{RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}
	}
	f.nextID++
	b.ID = f.nextID
	f.bookings[b.ID] = b
	return b, nil
}

func (f *fakeBookingRepo) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	cur, ok := f.bookings[b.ID]
	if !ok || cur.DeletedAt != nil {
		return domain.Booking{}, domain.ErrNotFound
	}
	if f.conflicts(b.RoomID, b.CheckIn, b.CheckOut, b.ID) {
		return domain.Booking{}, &domain.ConflictError{RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}
	}
	cur.RoomID, cur.CheckIn, cur.CheckOut = b.RoomID, b.CheckIn, b.CheckOut
	f.bookings[b.ID] = cur
	return cur, nil
}

func (f *fakeBookingRepo) CancelBooking(ctx context.Context, id int64, actorID *int64) error {
	b, ok := f.bookings[id]
	if !ok || b.DeletedAt != nil {
		return domain.ErrNotFound
	}
	now := time.Now()
	b.Status = domain.BookingCancelled
	b.DeletedAt = &now
	b.DeletedBy = actorID
	f.bookings[id] = b
	return nil
}

func (f *fakeBookingRepo) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookingRepo) ListRoomBookings(ctx context.Context, roomID int64, pg domain.PageQuery) (domain.BookingsPage, error) {
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.RoomID == roomID && (pg.IncludeClosed || b.Active()) {
			out = append(out, b)
		}
	}
	return domain.BookingsPage{Items: out}, nil
}

func (f *fakeBookingRepo) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	return nil, nil
}

// ---- helpers ----

var today = time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)

func newService(repo *fakeBookingRepo) *app.BookingService {
	return app.NewBookingService(repo, nil,
		app.WithClock(func() time.Time { return today }),
		app.WithRetryPolicy(3, time.Millisecond),
	)
}

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func guest() domain.GuestInfo {
	return domain.GuestInfo{Name: "Ana", Email: "ana@example.com"}
}

// ---- tests ----

func TestCreate_ValidationFailsBeforeStorage(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)

	cases := []struct {
		name    string
		in, out string
	}{
		{"inverted range", "2026-10-10", "2026-10-05"},
		{"zero-length range", "2026-10-10", "2026-10-10"},
		{"past check_in", "2026-08-01", "2026-10-05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, date(tc.in), date(tc.out), guest())
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
	if repo.createCalls != 0 {
		t.Fatalf("storage reached %d times despite invalid input", repo.createCalls)
	}
}

func TestCreate_TodayIsBookable(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)

	b, err := svc.Create(context.Background(), 1, date("2026-09-01"), date("2026-09-02"), guest())
	if err != nil {
		t.Fatalf("same-day check-in should pass: %v", err)
	}
	if b.Status != domain.BookingPending {
		t.Fatalf("new booking status = %s, want pending", b.Status)
	}
	if b.Reference == "" {
		t.Fatal("new booking has no reference")
	}
}

func TestCreate_HalfOpenBoundary(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-08"), guest()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.Create(ctx, 1, date("2026-10-08"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("back-to-back booking must not conflict: %v", err)
	}
}

func TestCreate_OverlapConflict(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.Create(ctx, 1, date("2026-10-08"), date("2026-10-12"), guest())
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if len(repo.bookings) != 1 {
		t.Fatalf("conflicting attempt left %d bookings, want 1", len(repo.bookings))
	}
}

func TestCreate_DifferentRoomsDoNotConflict(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("room 1: %v", err)
	}
	if _, err := svc.Create(ctx, 2, date("2026-10-05"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("room 2 must be independent: %v", err)
	}
}

func TestCreate_TransientFailureRetried(t *testing.T) {
	repo := newFakeBookingRepo()
	repo.transientLeft = 2
	svc := newService(repo)

	if _, err := svc.Create(context.Background(), 1, date("2026-10-05"), date("2026-10-08"), guest()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if repo.createCalls != 3 {
		t.Fatalf("createCalls = %d, want 3 (two deadlocks, one success)", repo.createCalls)
	}
}

func TestCreate_RetriesExhausted(t *testing.T) {
	repo := newFakeBookingRepo()
	repo.transientLeft = 99
	svc := newService(repo)

	_, err := svc.Create(context.Background(), 1, date("2026-10-05"), date("2026-10-08"), guest())
	var ex *domain.ConcurrencyExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("want ConcurrencyExhaustedError, got %v", err)
	}
	if ex.Attempts != 3 || repo.createCalls != 3 {
		t.Fatalf("attempts = %d, createCalls = %d, want 3/3", ex.Attempts, repo.createCalls)
	}
	if !domain.IsTransient(errors.Unwrap(ex)) {
		t.Fatal("exhaustion must carry the last transient failure")
	}
}

func TestCreate_ConflictNeverRetried(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	calls := repo.createCalls
	_, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest())
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if repo.createCalls != calls+1 {
		t.Fatalf("business conflict was retried: %d extra calls", repo.createCalls-calls)
	}
}

func TestCancel_FreesRangeImmediately(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	b, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	actor := int64(77)
	if err := svc.Cancel(ctx, b.ID, &actor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got := repo.bookings[b.ID]
	if got.DeletedAt == nil || got.DeletedBy == nil || *got.DeletedBy != 77 {
		t.Fatalf("cancel did not record soft delete: %+v", got)
	}
	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest()); err != nil {
		t.Fatalf("cancelled range must be bookable again: %v", err)
	}
}

func TestCancel_NotFound(t *testing.T) {
	svc := newService(newFakeBookingRepo())
	if err := svc.Cancel(context.Background(), 12345, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdate_ExcludesOwnBooking(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	b, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-10"), guest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Shifting by a day overlaps the old range; only the exclusion makes it legal.
	out, err := svc.Update(ctx, b.ID, 1, date("2026-10-06"), date("2026-10-11"), guest())
	if err != nil {
		t.Fatalf("update over own range: %v", err)
	}
	if !out.CheckIn.Equal(date("2026-10-06")) {
		t.Fatalf("dates not applied: %+v", out)
	}
}

func TestUpdate_ConflictWithOtherBooking(t *testing.T) {
	repo := newFakeBookingRepo()
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, date("2026-10-05"), date("2026-10-08"), guest()); err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := svc.Create(ctx, 1, date("2026-10-10"), date("2026-10-12"), guest())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_, err = svc.Update(ctx, b.ID, 1, date("2026-10-07"), date("2026-10-09"), guest())
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newService(newFakeBookingRepo())
	_, err := svc.Update(context.Background(), 999, 1, date("2026-10-05"), date("2026-10-08"), guest())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
