package app_test

import (
	"context"
	"errors"
	"testing"

	"hostel_booking/internal/app"
	"hostel_booking/internal/domain"
)

// fakeRoomRepo applies the version guard the way the conditional UPDATE does.
type fakeRoomRepo struct {
	rooms map[int64]domain.Room
}

func newFakeRoomRepo(rooms ...domain.Room) *fakeRoomRepo {
	f := &fakeRoomRepo{rooms: map[int64]domain.Room{}}
	for _, rm := range rooms {
		f.rooms[rm.ID] = rm
	}
	return f
}

func (f *fakeRoomRepo) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	rm, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	return rm, nil
}

func (f *fakeRoomRepo) ListRooms(ctx context.Context, q domain.RoomsQuery) (domain.RoomsPage, error) {
	return domain.RoomsPage{}, nil
}

func (f *fakeRoomRepo) UpdateRoom(ctx context.Context, id int64, ch domain.RoomChanges, expectedVersion int64) (domain.Room, error) {
	rm, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	if rm.LockVersion != expectedVersion {
		return domain.Room{}, &domain.StaleVersionError{RoomID: id, Expected: expectedVersion}
	}
	if ch.Name != nil {
		rm.Name = *ch.Name
	}
	if ch.Price != nil {
		rm.Price = *ch.Price
	}
	if ch.MaxGuests != nil {
		rm.MaxGuests = *ch.MaxGuests
	}
	if ch.Status != nil {
		rm.Status = *ch.Status
	}
	rm.LockVersion++
	f.rooms[id] = rm
	return rm, nil
}

func priceChange(p float64) domain.RoomChanges { return domain.RoomChanges{Price: &p} }

func TestRoomUpdate_VersionIncrementsByOne(t *testing.T) {
	repo := newFakeRoomRepo(domain.Room{ID: 1, Name: "Dorm A", Price: 20, MaxGuests: 4, Status: domain.RoomAvailable, LockVersion: 1})
	svc := app.NewRoomService(repo, nil)

	rm, err := svc.Update(context.Background(), 1, priceChange(25), 1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rm.LockVersion != 2 || rm.Price != 25 {
		t.Fatalf("after update: version=%d price=%v, want 2/25", rm.LockVersion, rm.Price)
	}
}

func TestRoomUpdate_StaleVersionLosesRace(t *testing.T) {
	repo := newFakeRoomRepo(domain.Room{ID: 1, Price: 20, LockVersion: 1, Status: domain.RoomAvailable})
	svc := app.NewRoomService(repo, nil)
	ctx := context.Background()

	// Client A wins with expected version 1.
	if _, err := svc.Update(ctx, 1, priceChange(25), 1); err != nil {
		t.Fatalf("client A: %v", err)
	}
	// Client B read the room before A committed and still holds version 1.
	_, err := svc.Update(ctx, 1, priceChange(30), 1)
	var sve *domain.StaleVersionError
	if !errors.As(err, &sve) {
		t.Fatalf("want StaleVersionError, got %v", err)
	}
	if rm := repo.rooms[1]; rm.LockVersion != 2 || rm.Price != 25 {
		t.Fatalf("loser must not clobber: version=%d price=%v", rm.LockVersion, rm.Price)
	}
}

func TestRoomUpdate_Validation(t *testing.T) {
	repo := newFakeRoomRepo(domain.Room{ID: 1, LockVersion: 1, Status: domain.RoomAvailable})
	svc := app.NewRoomService(repo, nil)
	ctx := context.Background()

	bad := domain.RoomStatus("closed")
	neg := -1.0
	zero := 0
	cases := []struct {
		name     string
		ch       domain.RoomChanges
		expected int64
	}{
		{"no changes", domain.RoomChanges{}, 1},
		{"zero version", priceChange(10), 0},
		{"negative price", domain.RoomChanges{Price: &neg}, 1},
		{"zero max_guests", domain.RoomChanges{MaxGuests: &zero}, 1},
		{"unknown status", domain.RoomChanges{Status: &bad}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(ctx, 1, tc.ch, tc.expected)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
	if rm := repo.rooms[1]; rm.LockVersion != 1 {
		t.Fatalf("invalid edits must not touch the room: version=%d", rm.LockVersion)
	}
}

func TestRoomUpdate_NotFound(t *testing.T) {
	svc := app.NewRoomService(newFakeRoomRepo(), nil)
	_, err := svc.Update(context.Background(), 42, priceChange(10), 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
