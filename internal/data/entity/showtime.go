package entity

import (
	"time"
)

type Showtime struct {
	ID        int64      `db:"id"`
	MovieID   int64      `db:"movie_id"`
	HallID    int64      `db:"hall_id"`
	StartTime time.Time  `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`
	BasePrice float64    `db:"base_price"`

	// SecondsUntilStart is measured against the database clock at read time.
	SecondsUntilStart int64 `db:"-"`
}
