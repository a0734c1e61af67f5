package repository

import (
	"errors"

	"cinema-reservation/pkg/database"

	"go.uber.org/zap"
)

// ErrStaleStatus is returned when a guarded status update finds the row in a
// different state than the caller expected.
var ErrStaleStatus = errors.New("row is not in the expected status")

// dbNow is the authoritative clock for holds, refunds and sweeps.
// clock_timestamp() advances inside a transaction, unlike now().
const dbNow = "clock_timestamp()"

type Repository struct {
	Showtime    ShowtimeRepository
	Seat        SeatRepository
	Booking     BookingRepository
	BookingSeat BookingSeatRepository
	Payment     PaymentRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		Showtime:    NewShowtimeRepository(db, log),
		Seat:        NewSeatRepository(db, log),
		Booking:     NewBookingRepository(db, log),
		BookingSeat: NewBookingSeatRepository(db, log),
		Payment:     NewPaymentRepository(db, log),
	}
}
