package entity

import (
	"slices"
	"time"
)

type BookingStatus string

const (
	BookingStatusHeld      BookingStatus = "held"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusRefunded  BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusHeld: {BookingStatusExpired, BookingStatusCancelled, BookingStatusPaid},
	BookingStatusPaid: {BookingStatusRefunded},
}

// CanTransitionTo reports whether the booking state machine allows s -> next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return slices.Contains(bookingTransitions[s], next)
}

type Booking struct {
	Base
	UserID        *int64        `db:"user_id"`
	ShowtimeID    int64         `db:"showtime_id"`
	BookingCode   string        `db:"booking_code"`
	TotalPrice    float64       `db:"total_price"`
	Status        BookingStatus `db:"status"`
	ExpireAt      *time.Time    `db:"expire_at"`
	TicketToken   *string       `db:"ticket_token"`
	TicketPayload *string       `db:"ticket_payload"`

	// HoldLapsed is computed by the database clock when the row is read
	// for update: true once now >= expire_at.
	HoldLapsed bool `db:"-"`
}

// OwnedBy reports whether userID owns the booking. Guest bookings have no owner.
func (b *Booking) OwnedBy(userID int64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// SeatHolder is one (booking, seat) pair returned by the conflict scan.
type SeatHolder struct {
	BookingID  int64
	SeatID     int64
	Status     BookingStatus
	HoldActive bool
}

// Blocks reports whether the holder makes the seat unavailable.
func (h SeatHolder) Blocks() bool {
	switch h.Status {
	case BookingStatusPaid:
		return true
	case BookingStatusHeld:
		return h.HoldActive
	default:
		return false
	}
}
