package usecase

import (
	"context"
	"errors"
	"testing"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func openShowtime() *entity.Showtime {
	return &entity.Showtime{ID: 10, HallID: 3, BasePrice: 100000, SecondsUntilStart: 3600}
}

func hallSeats() []*entity.Seat {
	return []*entity.Seat{
		{ID: 1, HallID: 3, RowLabel: "A", SeatNumber: 1, SeatType: "standard", PriceModifier: 1},
		{ID: 2, HallID: 3, RowLabel: "A", SeatNumber: 2, SeatType: "vip", PriceModifier: 1.5},
	}
}

func TestLockSeats_HoldsFreeSeats(t *testing.T) {
	env := newTestEnv()
	svc := NewReservationService(env.deps)
	ctx := context.Background()

	env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(openShowtime(), nil)
	env.seats.On("FindByIDs", mock.Anything, []int64{1, 2}).Return(hallSeats(), nil)
	env.bookings.On("LockSeatKeys", mock.Anything, int64(10), []int64{1, 2}).Return(nil)
	env.bookings.On("FindSeatHolders", mock.Anything, int64(10), []int64{1, 2}).Return([]entity.SeatHolder{
		{BookingID: 40, SeatID: 1, Status: entity.BookingStatusHeld, HoldActive: false},
		{BookingID: 41, SeatID: 2, Status: entity.BookingStatusCancelled},
	}, nil)
	env.bookings.On("Create", mock.Anything, mock.AnythingOfType("*entity.Booking"), env.deps.Policy.HoldDuration).
		Run(func(args mock.Arguments) {
			args.Get(1).(*entity.Booking).ID = 55
		}).
		Return(nil)
	env.bookingSeats.On("CreateBatch", mock.Anything, int64(55), mock.Anything).Return(nil)

	result, err := svc.LockSeats(ctx, &request.LockSeatsRequest{
		UserID:     int64Ptr(7),
		ShowtimeID: 10,
		SeatIDs:    request.SeatIDList{1, 2},
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, int64(55), result.Booking.ID)
	assert.Equal(t, entity.BookingStatusHeld, result.Booking.Status)
	assert.Equal(t, 250000.0, result.Booking.TotalPrice)
	assert.Equal(t, int64(7), *result.Booking.UserID)
	assert.NotEmpty(t, result.Booking.BookingCode)
	require.Len(t, result.Seats, 2)
	assert.Equal(t, 100000.0, result.Seats[0].Price)
	assert.Equal(t, 150000.0, result.Seats[1].Price)
	assert.Equal(t, 1, env.tx.commits)
	env.bookings.AssertExpectations(t)
	env.bookingSeats.AssertExpectations(t)
}

func TestLockSeats_ReportsConflicts(t *testing.T) {
	env := newTestEnv()
	svc := NewReservationService(env.deps)

	env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(openShowtime(), nil)
	env.seats.On("FindByIDs", mock.Anything, mock.Anything).Return(hallSeats(), nil)
	env.bookings.On("LockSeatKeys", mock.Anything, int64(10), mock.Anything).Return(nil)
	env.bookings.On("FindSeatHolders", mock.Anything, int64(10), mock.Anything).Return([]entity.SeatHolder{
		{BookingID: 40, SeatID: 2, Status: entity.BookingStatusPaid},
		{BookingID: 42, SeatID: 1, Status: entity.BookingStatusHeld, HoldActive: true},
		{BookingID: 43, SeatID: 2, Status: entity.BookingStatusHeld, HoldActive: true},
	}, nil)

	result, err := svc.LockSeats(context.Background(), &request.LockSeatsRequest{
		ShowtimeID: 10,
		SeatIDs:    request.SeatIDList{2, 1},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []int64{1, 2}, result.Conflicts)
	assert.Nil(t, result.Booking)
	assert.Equal(t, 1, env.tx.rollbacks)
	env.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	env.bookingSeats.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestLockSeats_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   *request.LockSeatsRequest
		field string
	}{
		{"no seats", &request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{}}, "seat_ids"},
		{"duplicate seats", &request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{4, 4}}, "seat_ids"},
		{"missing showtime", &request.LockSeatsRequest{SeatIDs: request.SeatIDList{1}}, "showtime_id"},
		{"bad user", &request.LockSeatsRequest{UserID: int64Ptr(-1), ShowtimeID: 10, SeatIDs: request.SeatIDList{1}}, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			svc := NewReservationService(env.deps)

			_, err := svc.LockSeats(context.Background(), tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.True(t, IsValidationError(err))
			env.showtimes.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		})
	}
}

func TestLockSeats_ShowtimeChecks(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		env := newTestEnv()
		env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(nil, nil)

		_, err := NewReservationService(env.deps).LockSeats(context.Background(),
			&request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{1}})

		assert.ErrorIs(t, err, ErrShowtimeNotFound)
	})

	t.Run("already started", func(t *testing.T) {
		env := newTestEnv()
		started := openShowtime()
		started.SecondsUntilStart = -30
		env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(started, nil)

		_, err := NewReservationService(env.deps).LockSeats(context.Background(),
			&request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{1}})

		assert.True(t, IsValidationError(err))
	})

	t.Run("seat from another hall", func(t *testing.T) {
		env := newTestEnv()
		env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(openShowtime(), nil)
		env.seats.On("FindByIDs", mock.Anything, mock.Anything).Return([]*entity.Seat{
			{ID: 1, HallID: 3, PriceModifier: 1},
			{ID: 9, HallID: 4, PriceModifier: 1},
		}, nil)

		_, err := NewReservationService(env.deps).LockSeats(context.Background(),
			&request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{1, 9, 12}})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields["seat_ids"], "9, 12")
		assert.Zero(t, env.tx.commits+env.tx.rollbacks)
	})
}

func TestLockSeats_DatabaseError(t *testing.T) {
	env := newTestEnv()
	env.showtimes.On("FindByID", mock.Anything, int64(10)).Return(openShowtime(), nil)
	env.seats.On("FindByIDs", mock.Anything, mock.Anything).Return(hallSeats(), nil)
	env.bookings.On("LockSeatKeys", mock.Anything, int64(10), mock.Anything).Return(errors.New("deadlock detected"))

	_, err := NewReservationService(env.deps).LockSeats(context.Background(),
		&request.LockSeatsRequest{ShowtimeID: 10, SeatIDs: request.SeatIDList{1, 2}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, 1, env.tx.rollbacks)
}

func TestCancelBooking_ReleasesHold(t *testing.T) {
	env := newTestEnv()
	booking := heldBooking(5)

	env.bookings.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(booking, nil)
	env.bookings.On("TransitionStatus", mock.Anything, int64(5), entity.BookingStatusHeld, entity.BookingStatusCancelled).Return(nil)
	env.payments.On("CancelPendingByBooking", mock.Anything, int64(5)).Return(int64(1), nil)

	result, err := NewReservationService(env.deps).CancelBooking(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	assert.Equal(t, int64(1), result.CancelledPayments)
	assert.Equal(t, []event.Type{event.BookingCancelled}, env.publisher.types())
	env.payments.AssertExpectations(t)
}

func TestCancelBooking_RejectsPaid(t *testing.T) {
	env := newTestEnv()
	booking := heldBooking(5)
	booking.Status = entity.BookingStatusPaid
	env.bookings.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(booking, nil)

	_, err := NewReservationService(env.deps).CancelBooking(context.Background(), 5)

	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, ErrBookingNotCancellable)
	assert.Equal(t, entity.BookingStatusPaid, serr.Status)
	assert.Empty(t, env.publisher.types())
	env.payments.AssertNotCalled(t, "CancelPendingByBooking", mock.Anything, mock.Anything)
}

func TestCancelBooking_NotFound(t *testing.T) {
	env := newTestEnv()
	env.bookings.On("FindByIDForUpdate", mock.Anything, int64(99)).Return(nil, nil)

	_, err := NewReservationService(env.deps).CancelBooking(context.Background(), 99)

	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestGetBookingStatus(t *testing.T) {
	env := newTestEnv()
	env.bookings.On("FindByID", mock.Anything, int64(5)).Return(heldBooking(5), nil)
	env.bookings.On("FindByID", mock.Anything, int64(6)).Return(nil, nil)
	svc := NewReservationService(env.deps)

	booking, err := svc.GetBookingStatus(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusHeld, booking.Status)

	_, err = svc.GetBookingStatus(context.Background(), 6)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestListUserBookings_AttachesSeats(t *testing.T) {
	env := newTestEnv()
	b1, b2 := heldBooking(1), heldBooking(2)

	env.bookings.On("FindByUserID", mock.Anything, int64(7), 10, 10).Return([]*entity.Booking{b2, b1}, nil)
	env.bookings.On("CountByUserID", mock.Anything, int64(7)).Return(int64(12), nil)
	env.bookingSeats.On("FindByBookingIDs", mock.Anything, []int64{2, 1}).Return(map[int64][]*entity.BookingSeat{
		1: {{BookingID: 1, SeatID: 3, Price: 100000}},
	}, nil)

	details, total, err := NewReservationService(env.deps).ListUserBookings(context.Background(), 7,
		&request.PaginatedRequest{Page: 2, PerPage: 10})

	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, details, 2)
	assert.Equal(t, int64(2), details[0].Booking.ID)
	assert.Empty(t, details[0].Seats)
	assert.Len(t, details[1].Seats, 1)
}
