package mysql

// Locking order: the room row is always locked before any booking rows.
// Two transactions for the same room serialize on lockRoomSQL; transactions
// for different rooms never block each other.

const lockRoomSQL = `SELECT id FROM rooms WHERE id = ? FOR UPDATE`

// Active bookings for a room, locked alongside the room row. The overlap
// decision itself is made in Go (domain.Overlaps) per candidate row.
// Served by the (room_id, status, check_in, check_out) index.
const activeBookingsForUpdateSQL = `
SELECT id, check_in, check_out
FROM bookings
WHERE room_id = ?
  AND status IN ('pending','confirmed')
  AND deleted_at IS NULL
FOR UPDATE`

const insertBookingSQL = `
INSERT INTO bookings
  (room_id, user_id, guest_name, guest_email, reference, check_in, check_out, status)
VALUES
  (?, ?, ?, ?, ?, ?, ?, 'pending')`

const bookingColumns = `id, room_id, user_id, guest_name, guest_email, reference, check_in, check_out, status, deleted_at, deleted_by, created_at, updated_at`

const getBookingForUpdateSQL = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE id = ? AND deleted_at IS NULL
FOR UPDATE`

const updateBookingSQL = `
UPDATE bookings
SET room_id = ?, user_id = ?, guest_name = ?, guest_email = ?, check_in = ?, check_out = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND deleted_at IS NULL`

const cancelBookingSQL = `
UPDATE bookings
SET status = 'cancelled', deleted_at = CURRENT_TIMESTAMP, deleted_by = ?
WHERE id = ? AND deleted_at IS NULL`

const getBookingSQL = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE id = ?`

const listRoomBookingsPrefix = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE room_id = ?`

const listExpiredPendingSQL = `
SELECT id
FROM bookings
WHERE status = 'pending' AND deleted_at IS NULL AND created_at < ?
ORDER BY id
LIMIT ?`

const roomColumns = `id, name, price, max_guests, status, lock_version, created_at, updated_at`

const getRoomSQL = `
SELECT ` + roomColumns + `
FROM rooms
WHERE id = ?`

const listRoomsPrefix = `
SELECT ` + roomColumns + `
FROM rooms`

// The optimistic room update is assembled at call time: its SET clause depends
// on which fields the caller touched, but the guard is always
// `WHERE id = ? AND lock_version = ?` with `lock_version = lock_version + 1`
// appended to the SET list.
