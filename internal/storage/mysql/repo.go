package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"hostel_booking/internal/adapters/observability"
	"hostel_booking/internal/domain"
)

func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// CreateBooking runs the pessimistic write protocol in a single transaction:
// lock the room row, re-check availability against the locked view, insert,
// commit. A failed attempt leaves no row behind. Deadlocks and lock-wait
// timeouts come back wrapped in domain.ErrTxnTransient.
func (r *Repo) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	defer tx.Rollback() // no-op once committed

	if err := lockRoom(ctx, tx, b.RoomID); err != nil {
		return domain.Booking{}, err
	}
	conflict, err := hasConflict(ctx, tx, b.RoomID, b.CheckIn, b.CheckOut, 0)
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	if conflict {
		return domain.Booking{}, &domain.ConflictError{RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}
	}

	res, err := tx.ExecContext(ctx, insertBookingSQL,
		b.RoomID, valInt64(b.UserID), b.GuestName, b.GuestEmail, b.Reference, b.CheckIn, b.CheckOut)
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Booking{}, err
	}
	out, err := scanBooking(tx.QueryRowContext(ctx, getBookingSQL, id))
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	return out, nil
}

// UpdateBooking moves an existing booking to new dates (or a new room) under
// the same protocol, excluding the booking's own id from the conflict check.
func (r *Repo) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	defer tx.Rollback()

	if err := lockRoom(ctx, tx, b.RoomID); err != nil {
		return domain.Booking{}, err
	}
	// The booking must still exist and be live before we bother with overlaps.
	if _, err := scanBooking(tx.QueryRowContext(ctx, getBookingForUpdateSQL, b.ID)); err != nil {
		if err == sql.ErrNoRows {
			return domain.Booking{}, domain.ErrNotFound
		}
		return domain.Booking{}, wrapTransient(err)
	}
	conflict, err := hasConflict(ctx, tx, b.RoomID, b.CheckIn, b.CheckOut, b.ID)
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	if conflict {
		return domain.Booking{}, &domain.ConflictError{RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}
	}

	if _, err := tx.ExecContext(ctx, updateBookingSQL,
		b.RoomID, valInt64(b.UserID), b.GuestName, b.GuestEmail, b.CheckIn, b.CheckOut, b.ID); err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	out, err := scanBooking(tx.QueryRowContext(ctx, getBookingSQL, b.ID))
	if err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, wrapTransient(err)
	}
	return out, nil
}

// CancelBooking soft-deletes: the row stays for audit, but the availability
// query filters on deleted_at IS NULL, so the range frees up immediately.
func (r *Repo) CancelBooking(ctx context.Context, id int64, actorID *int64) error {
	res, err := r.db.ExecContext(ctx, cancelBookingSQL, valInt64(actorID), id)
	if err != nil {
		return wrapTransient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) ListRoomBookings(ctx context.Context, roomID int64, pg domain.PageQuery) (domain.BookingsPage, error) {
	q := listRoomBookingsPrefix
	if !pg.IncludeClosed {
		q += " AND status IN ('pending','confirmed') AND deleted_at IS NULL"
	}
	q += " ORDER BY check_in, id LIMIT ?"

	rows, err := r.db.QueryContext(ctx, q, roomID, pg.Limit)
	if err != nil {
		return domain.BookingsPage{}, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return domain.BookingsPage{}, err
	}
	return domain.BookingsPage{Items: out}, nil
}

func (r *Repo) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listExpiredPendingSQL, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, getRoomSQL, id))
	if err == sql.ErrNoRows {
		return domain.Room{}, domain.ErrNotFound
	}
	return rm, err
}

func (r *Repo) ListRooms(ctx context.Context, q domain.RoomsQuery) (domain.RoomsPage, error) {
	sqlStr := listRoomsPrefix
	args := make([]any, 0, 2)
	if q.Status != nil {
		sqlStr += " WHERE status = ?"
		args = append(args, string(*q.Status))
	}
	sqlStr += " ORDER BY id LIMIT ?"
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return domain.RoomsPage{}, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return domain.RoomsPage{}, err
		}
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		return domain.RoomsPage{}, err
	}
	return domain.RoomsPage{Items: out}, nil
}

// UpdateRoom is the optimistic path: one conditional UPDATE, no lock, no
// retry. Zero rows affected means either the room is gone (ErrNotFound) or a
// concurrent writer bumped the version first (StaleVersionError).
func (r *Repo) UpdateRoom(ctx context.Context, id int64, ch domain.RoomChanges, expectedVersion int64) (domain.Room, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 8)
	if ch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *ch.Name)
	}
	if ch.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *ch.Price)
	}
	if ch.MaxGuests != nil {
		sets = append(sets, "max_guests = ?")
		args = append(args, *ch.MaxGuests)
	}
	if ch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*ch.Status))
	}
	sets = append(sets, "lock_version = lock_version + 1", "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, expectedVersion)

	q := "UPDATE rooms SET " + strings.Join(sets, ", ") + " WHERE id = ? AND lock_version = ?"
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.Room{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Room{}, err
	}
	if n == 0 {
		if _, err := r.GetRoom(ctx, id); err != nil {
			return domain.Room{}, err // ErrNotFound
		}
		return domain.Room{}, &domain.StaleVersionError{RoomID: id, Expected: expectedVersion}
	}
	return r.GetRoom(ctx, id)
}

// ---- transaction internals ----

func lockRoom(ctx context.Context, tx *sql.Tx, roomID int64) error {
	start := time.Now()
	var id int64
	err := tx.QueryRowContext(ctx, lockRoomSQL, roomID).Scan(&id)
	observability.ObserveLockWait(time.Since(start))
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return wrapTransient(err)
}

// hasConflict scans the locked active bookings for the room and applies the
// half-open overlap test per row, stopping at the first hit. excludeID skips
// the booking being moved; 0 excludes nothing.
func hasConflict(ctx context.Context, tx *sql.Tx, roomID int64, checkIn, checkOut time.Time, excludeID int64) (bool, error) {
	rows, err := tx.QueryContext(ctx, activeBookingsForUpdateSQL, roomID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var in, out time.Time
		if err := rows.Scan(&id, &in, &out); err != nil {
			return false, err
		}
		if id == excludeID {
			continue
		}
		if domain.Overlaps(checkIn, checkOut, in, out) {
			return true, nil
		}
	}
	return false, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	var userID, deletedBy sql.NullInt64
	var deletedAt sql.NullTime
	var status string
	if err := row.Scan(
		&b.ID, &b.RoomID, &userID, &b.GuestName, &b.GuestEmail, &b.Reference,
		&b.CheckIn, &b.CheckOut, &status, &deletedAt, &deletedBy, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	if userID.Valid {
		v := userID.Int64
		b.UserID = &v
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		b.DeletedAt = &t
	}
	if deletedBy.Valid {
		v := deletedBy.Int64
		b.DeletedBy = &v
	}
	return b, nil
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var rm domain.Room
	var status string
	if err := row.Scan(
		&rm.ID, &rm.Name, &rm.Price, &rm.MaxGuests, &status, &rm.LockVersion, &rm.CreatedAt, &rm.UpdatedAt,
	); err != nil {
		return domain.Room{}, err
	}
	rm.Status = domain.RoomStatus(status)
	return rm, nil
}
