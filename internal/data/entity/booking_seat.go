package entity

type BookingSeat struct {
	ID        int64   `db:"id"`
	BookingID int64   `db:"booking_id"`
	SeatID    int64   `db:"seat_id"`
	Price     float64 `db:"price"`
}
