package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"hostel_booking/internal/app"
	"hostel_booking/internal/domain"
)

type Handlers struct {
	Bookings *app.BookingService
	Rooms    *app.RoomService
	Q        *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Patch("/v1/bookings/{id}", h.updateBooking)
	s.mux.Delete("/v1/bookings/{id}", h.cancelBooking)

	s.mux.Get("/v1/rooms", h.listRooms)
	s.mux.Get("/v1/rooms/{id}", h.getRoom)
	s.mux.Patch("/v1/rooms/{id}", h.updateRoom)
	s.mux.Get("/v1/rooms/{id}/bookings", h.listRoomBookings)
}

// ---- request/response shapes ----

type bookingRequest struct {
	RoomID     int64  `json:"room_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	UserID     *int64 `json:"user_id,omitempty"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
}

type bookingResponse struct {
	ID         int64  `json:"id"`
	RoomID     int64  `json:"room_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
	Reference  string `json:"reference"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Status     string `json:"status"`
}

type roomUpdateRequest struct {
	ExpectedLockVersion int64    `json:"expected_lock_version"`
	Name                *string  `json:"name,omitempty"`
	Price               *float64 `json:"price,omitempty"`
	MaxGuests           *int     `json:"max_guests,omitempty"`
	Status              *string  `json:"status,omitempty"`
}

type roomResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	MaxGuests   int     `json:"max_guests"`
	Status      string  `json:"status"`
	LockVersion int64   `json:"lock_version"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		RoomID:     b.RoomID,
		UserID:     b.UserID,
		GuestName:  b.GuestName,
		GuestEmail: b.GuestEmail,
		Reference:  b.Reference,
		CheckIn:    b.CheckIn.Format(domain.DateLayout),
		CheckOut:   b.CheckOut.Format(domain.DateLayout),
		Status:     string(b.Status),
	}
}

func toRoomResponse(rm domain.Room) roomResponse {
	return roomResponse{
		ID:          rm.ID,
		Name:        rm.Name,
		Price:       rm.Price,
		MaxGuests:   rm.MaxGuests,
		Status:      string(rm.Status),
		LockVersion: rm.LockVersion,
	}
}

// ---- handlers ----

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	checkIn, checkOut, ok := parseDates(w, req.CheckIn, req.CheckOut)
	if !ok {
		return
	}
	guest := domain.GuestInfo{UserID: req.UserID, Name: req.GuestName, Email: req.GuestEmail}
	b, err := h.Bookings.Create(r.Context(), req.RoomID, checkIn, checkOut, guest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *Handlers) updateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	checkIn, checkOut, ok := parseDates(w, req.CheckIn, req.CheckOut)
	if !ok {
		return
	}
	guest := domain.GuestInfo{UserID: req.UserID, Name: req.GuestName, Email: req.GuestEmail}
	b, err := h.Bookings.Update(r.Context(), id, req.RoomID, checkIn, checkOut, guest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var actorID *int64
	if s := r.URL.Query().Get("actor_id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid actor_id", "actor_id must be a number")
			return
		}
		actorID = &v
	}
	if err := h.Bookings.Cancel(r.Context(), id, actorID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Q.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rm, err := h.Q.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	serveWithETag(w, r, toRoomResponse(rm))
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	q := domain.RoomsQuery{Limit: 100}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.RoomStatus(s)
		if !st.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be available, occupied or maintenance")
			return
		}
		q.Status = &st
	}
	if lim, ok := parseLimit(w, r, q.Limit); ok {
		q.Limit = lim
	} else {
		return
	}
	page, err := h.Q.ListRooms(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]roomResponse, 0, len(page.Items))
	for _, rm := range page.Items {
		items = append(items, toRoomResponse(rm))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) listRoomBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pg := domain.PageQuery{Limit: 50}
	if lim, ok := parseLimit(w, r, pg.Limit); ok {
		pg.Limit = lim
	} else {
		return
	}
	pg.IncludeClosed = r.URL.Query().Get("include_closed") == "true"

	page, err := h.Q.ListRoomBookings(r.Context(), id, pg)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]bookingResponse, 0, len(page.Items))
	for _, b := range page.Items {
		items = append(items, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) updateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roomUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	ch := domain.RoomChanges{Name: req.Name, Price: req.Price, MaxGuests: req.MaxGuests}
	if req.Status != nil {
		st := domain.RoomStatus(*req.Status)
		ch.Status = &st
	}
	rm, err := h.Rooms.Update(r.Context(), id, ch, req.ExpectedLockVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(rm))
}

// ---- shared plumbing ----

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

func parseDates(w http.ResponseWriter, in, out string) (time.Time, time.Time, bool) {
	checkIn, err := time.Parse(domain.DateLayout, in)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid check_in", "check_in must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	checkOut, err := time.Parse(domain.DateLayout, out)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid check_out", "check_out must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return checkIn, checkOut, true
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return def, true
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > 200 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return 0, false
	}
	return l, true
}

// writeError maps the core error taxonomy onto response statuses: validation
// and booking conflicts are 422-class, stale room versions 409, retry
// exhaustion 503 (abnormal contention, not a business outcome).
func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var ce *domain.ConflictError
	var sve *domain.StaleVersionError
	var ex *domain.ConcurrencyExhaustedError
	switch {
	case errors.As(err, &ve):
		writeProblem(w, http.StatusUnprocessableEntity, "Validation Failed", ve.Error())
	case errors.As(err, &ce):
		writeProblem(w, http.StatusUnprocessableEntity, "Booking Conflict", ce.Error())
	case errors.As(err, &sve):
		writeProblem(w, http.StatusConflict, "Stale Version", sve.Error())
	case errors.As(err, &ex):
		writeProblem(w, http.StatusServiceUnavailable, "Contention", "please retry later")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body, nil
}

// serveWithETag writes v with a weak ETag, answering 304 when the caller's
// If-None-Match already carries the current tag.
func serveWithETag(w http.ResponseWriter, r *http.Request, v any) {
	etag, body, err := calcETagAndBody(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response body")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "failed to encode response")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}
