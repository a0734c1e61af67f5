package entity

type Seat struct {
	ID            int64   `db:"id"`
	HallID        int64   `db:"hall_id"`
	RowLabel      string  `db:"row_label"`
	SeatNumber    int     `db:"seat_number"`
	SeatType      string  `db:"seat_type"`
	PriceModifier float64 `db:"price_modifier"`
}
