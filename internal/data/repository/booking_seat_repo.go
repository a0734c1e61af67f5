package repository

import (
	"context"
	"fmt"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"go.uber.org/zap"
)

type BookingSeatRepository interface {
	CreateBatch(ctx context.Context, bookingID int64, seats []*entity.BookingSeat) error
	FindByBookingID(ctx context.Context, bookingID int64) ([]*entity.BookingSeat, error)
	FindByBookingIDs(ctx context.Context, bookingIDs []int64) (map[int64][]*entity.BookingSeat, error)
}

type bookingSeatRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingSeatRepository(db database.PgxIface, log *zap.Logger) BookingSeatRepository {
	return &bookingSeatRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking_seat")),
	}
}

// CreateBatch attaches all seats to the booking in a single statement and
// fills in the generated ids.
func (r *bookingSeatRepository) CreateBatch(ctx context.Context, bookingID int64, seats []*entity.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}

	seatIDs := make([]int64, len(seats))
	prices := make([]float64, len(seats))
	for i, bs := range seats {
		seatIDs[i] = bs.SeatID
		prices[i] = bs.Price
	}

	query := `
		INSERT INTO booking_seats (booking_id, seat_id, price)
		SELECT $1, t.seat_id, t.price
		FROM unnest($2::bigint[], $3::numeric[]) AS t(seat_id, price)
		RETURNING id, seat_id
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, bookingID, seatIDs, prices)
	if err != nil {
		r.log.Error("Failed to attach booking seats", zap.Error(err), zap.Int64("booking_id", bookingID))
		return fmt.Errorf("attach seats to booking %d: %w", bookingID, err)
	}
	defer rows.Close()

	ids := make(map[int64]int64, len(seats))
	for rows.Next() {
		var id, seatID int64
		if err := rows.Scan(&id, &seatID); err != nil {
			return fmt.Errorf("scan booking seat id: %w", err)
		}
		ids[seatID] = id
	}
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to attach booking seats", zap.Error(err), zap.Int64("booking_id", bookingID))
		return fmt.Errorf("attach seats to booking %d: %w", bookingID, err)
	}

	for _, bs := range seats {
		bs.BookingID = bookingID
		bs.ID = ids[bs.SeatID]
	}

	return nil
}

func (r *bookingSeatRepository) FindByBookingID(ctx context.Context, bookingID int64) ([]*entity.BookingSeat, error) {
	seats, err := r.FindByBookingIDs(ctx, []int64{bookingID})
	if err != nil {
		return nil, err
	}
	return seats[bookingID], nil
}

func (r *bookingSeatRepository) FindByBookingIDs(ctx context.Context, bookingIDs []int64) (map[int64][]*entity.BookingSeat, error) {
	result := make(map[int64][]*entity.BookingSeat, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, booking_id, seat_id, price
		FROM booking_seats
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, seat_id
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, bookingIDs)
	if err != nil {
		r.log.Error("Failed to find booking seats", zap.Error(err), zap.Int64s("booking_ids", bookingIDs))
		return nil, fmt.Errorf("find booking seats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bs entity.BookingSeat
		if err := rows.Scan(&bs.ID, &bs.BookingID, &bs.SeatID, &bs.Price); err != nil {
			r.log.Error("Failed to scan booking seat row", zap.Error(err))
			return nil, fmt.Errorf("scan booking seat row: %w", err)
		}
		result[bs.BookingID] = append(result[bs.BookingID], &bs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking seats: %w", err)
	}

	return result, nil
}
