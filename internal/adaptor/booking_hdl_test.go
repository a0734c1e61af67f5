package adaptor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReservationService struct {
	mock.Mock
}

func (m *mockReservationService) LockSeats(ctx context.Context, req *request.LockSeatsRequest) (*usecase.LockResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.LockResult), args.Error(1)
}

func (m *mockReservationService) CancelBooking(ctx context.Context, bookingID int64) (*usecase.CancelResult, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CancelResult), args.Error(1)
}

func (m *mockReservationService) GetBookingStatus(ctx context.Context, bookingID int64) (*entity.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Booking), args.Error(1)
}

func (m *mockReservationService) ListUserBookings(ctx context.Context, userID int64, req *request.PaginatedRequest) ([]usecase.BookingDetail, int64, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]usecase.BookingDetail), args.Get(1).(int64), args.Error(2)
}

func newBookingTestHandler() (*BookingHandler, *mockReservationService) {
	reservation := new(mockReservationService)
	return NewBookingHandler(reservation, nil, zap.NewNop()), reservation
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLockSeats_Created(t *testing.T) {
	h, reservation := newBookingTestHandler()

	booking := &entity.Booking{ShowtimeID: 4, BookingCode: "BOOK1", TotalPrice: 200000, Status: entity.BookingStatusHeld}
	booking.ID = 1
	reservation.On("LockSeats", mock.Anything, mock.MatchedBy(func(req *request.LockSeatsRequest) bool {
		return req.UserID == nil && req.ShowtimeID == 4 && len(req.SeatIDs) == 2
	})).Return(&usecase.LockResult{Success: true, Booking: booking}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/lock-seat", strings.NewReader(`{"showtime_id": 4, "seat_ids": [12, 13]}`))
	w := httptest.NewRecorder()
	h.LockSeats(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	reservation.AssertExpectations(t)
}

func TestLockSeats_ConflictReturns409(t *testing.T) {
	h, reservation := newBookingTestHandler()
	reservation.On("LockSeats", mock.Anything, mock.Anything).
		Return(&usecase.LockResult{Success: false, Conflicts: []int64{13}}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/lock-seat", strings.NewReader(`{"showtime_id": 4, "seat_ids": [12, 13]}`))
	w := httptest.NewRecorder()
	h.LockSeats(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, []any{float64(13)}, body["conflicts"])
}

func TestLockSeats_TokenUserMismatch(t *testing.T) {
	h, reservation := newBookingTestHandler()

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/lock-seat", strings.NewReader(`{"user_id": 9, "showtime_id": 4, "seat_ids": [12]}`))
	r = r.WithContext(utils.SetUserContext(r.Context(), 7))
	w := httptest.NewRecorder()
	h.LockSeats(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	reservation.AssertNotCalled(t, "LockSeats", mock.Anything, mock.Anything)
}

func TestLockSeats_TokenUserWins(t *testing.T) {
	h, reservation := newBookingTestHandler()
	reservation.On("LockSeats", mock.Anything, mock.MatchedBy(func(req *request.LockSeatsRequest) bool {
		return req.UserID != nil && *req.UserID == 7
	})).Return(&usecase.LockResult{Success: true, Booking: &entity.Booking{Status: entity.BookingStatusHeld}}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/lock-seat", strings.NewReader(`{"showtime_id": 4, "seat_ids": [12]}`))
	r = r.WithContext(utils.SetUserContext(r.Context(), 7))
	w := httptest.NewRecorder()
	h.LockSeats(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	reservation.AssertExpectations(t)
}

func TestLockSeats_NonNumericSeat(t *testing.T) {
	h, reservation := newBookingTestHandler()

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/lock-seat", strings.NewReader(`{"showtime_id": 4, "seat_ids": ["A1"]}`))
	w := httptest.NewRecorder()
	h.LockSeats(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	errs, ok := body["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "seat_ids")
	reservation.AssertNotCalled(t, "LockSeats", mock.Anything, mock.Anything)
}

func TestGetBookingStatus(t *testing.T) {
	h, reservation := newBookingTestHandler()
	booking := &entity.Booking{BookingCode: "BOOK42", Status: entity.BookingStatusPaid}
	booking.ID = 42
	reservation.On("GetBookingStatus", mock.Anything, int64(42)).Return(booking, nil)
	reservation.On("GetBookingStatus", mock.Anything, int64(43)).Return(nil, usecase.ErrBookingNotFound)

	router := chi.NewRouter()
	router.Get("/api/bookings/{bookingId}/status", h.GetBookingStatus)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bookings/42/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := decodeBody(t, w)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "paid", data["status"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bookings/43/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bookings/abc/status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
