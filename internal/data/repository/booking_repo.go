package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking, holdFor time.Duration) error
	FindByID(ctx context.Context, id int64) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*entity.Booking, error)
	FindByCode(ctx context.Context, code string) (*entity.Booking, error)
	FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*entity.Booking, error)
	CountByUserID(ctx context.Context, userID int64) (int64, error)
	TransitionStatus(ctx context.Context, id int64, from, to entity.BookingStatus) error
	SetTicket(ctx context.Context, id int64, token, payload string) (bool, error)

	// Seat locking
	LockSeatKeys(ctx context.Context, showtimeID int64, seatIDs []int64) error
	FindSeatHolders(ctx context.Context, showtimeID int64, seatIDs []int64) ([]entity.SeatHolder, error)

	// Sweeper
	ExpireLapsedHolds(ctx context.Context) (int64, error)
}

type bookingRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingRepository(db database.PgxIface, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `id, user_id, showtime_id, booking_code, total_price, status,
		created_at, updated_at, expire_at, ticket_token, ticket_payload`

func scanBooking(row pgx.Row, extra ...any) (*entity.Booking, error) {
	var b entity.Booking
	dest := []any{
		&b.ID,
		&b.UserID,
		&b.ShowtimeID,
		&b.BookingCode,
		&b.TotalPrice,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.ExpireAt,
		&b.TicketToken,
		&b.TicketPayload,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a held booking. expire_at is computed from the database clock.
func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking, holdFor time.Duration) error {
	query := `
		INSERT INTO bookings (user_id, showtime_id, booking_code, total_price, status, expire_at)
		VALUES ($1, $2, $3, $4, $5, ` + dbNow + ` + make_interval(secs => $6))
		RETURNING id, created_at, updated_at, expire_at
	`

	err := database.Conn(ctx, r.db).QueryRow(ctx, query,
		booking.UserID,
		booking.ShowtimeID,
		booking.BookingCode,
		booking.TotalPrice,
		booking.Status,
		holdFor.Seconds(),
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt, &booking.ExpireAt)

	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.Int64("showtime_id", booking.ShowtimeID),
			zap.String("booking_code", booking.BookingCode),
		)
		return fmt.Errorf("create booking %s: %w", booking.BookingCode, err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id int64) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(database.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID", zap.Error(err), zap.Int64("booking_id", id))
		return nil, fmt.Errorf("find booking by ID %d: %w", id, err)
	}

	return booking, nil
}

// FindByIDForUpdate locks the booking row until the surrounding transaction ends.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id int64) (*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `,
			COALESCE(expire_at <= ` + dbNow + `, false) AS hold_lapsed
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`

	var lapsed bool
	booking, err := scanBooking(database.Conn(ctx, r.db).QueryRow(ctx, query, id), &lapsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to lock booking", zap.Error(err), zap.Int64("booking_id", id))
		return nil, fmt.Errorf("lock booking %d: %w", id, err)
	}

	booking.HoldLapsed = lapsed
	return booking, nil
}

func (r *bookingRepository) FindByCode(ctx context.Context, code string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_code = $1`

	booking, err := scanBooking(database.Conn(ctx, r.db).QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by code", zap.Error(err), zap.String("booking_code", code))
		return nil, fmt.Errorf("find booking by code %s: %w", code, err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by user", zap.Error(err), zap.Int64("user_id", userID))
		return nil, fmt.Errorf("find bookings by user %d: %w", userID, err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return bookings, nil
}

func (r *bookingRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by user", zap.Error(err), zap.Int64("user_id", userID))
		return 0, fmt.Errorf("count bookings by user %d: %w", userID, err)
	}

	return count, nil
}

// TransitionStatus moves the booking from one status to another and fails with
// ErrStaleStatus if the row is no longer in from.
func (r *bookingRepository) TransitionStatus(ctx context.Context, id int64, from, to entity.BookingStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal booking transition %s -> %s", from, to)
	}

	query := `
		UPDATE bookings
		SET status = $3, updated_at = ` + dbNow + `
		WHERE id = $1 AND status = $2
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, id, from, to)
	if err != nil {
		r.log.Error("Failed to update booking status",
			zap.Error(err),
			zap.Int64("booking_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("update booking %d status: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %d not %s: %w", id, from, ErrStaleStatus)
	}

	return nil
}

// SetTicket stores the verification token once. It returns false when a token
// was already present.
func (r *bookingRepository) SetTicket(ctx context.Context, id int64, token, payload string) (bool, error) {
	query := `
		UPDATE bookings
		SET ticket_token = $2, ticket_payload = $3, updated_at = ` + dbNow + `
		WHERE id = $1 AND ticket_token IS NULL
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, id, token, payload)
	if err != nil {
		r.log.Error("Failed to store ticket", zap.Error(err), zap.Int64("booking_id", id))
		return false, fmt.Errorf("store ticket for booking %d: %w", id, err)
	}

	return result.RowsAffected() == 1, nil
}

// LockSeatKeys takes one transaction-scoped advisory lock per (showtime, seat)
// in ascending seat order. Lockers of overlapping seat sets queue here, so the
// conflict scan that follows cannot race with another insert for the same seat.
// Ids are folded into int4 keys; a collision only adds contention.
func (r *bookingRepository) LockSeatKeys(ctx context.Context, showtimeID int64, seatIDs []int64) error {
	if !database.InTx(ctx) {
		return errors.New("seat keys can only be locked inside a transaction")
	}

	ordered := slices.Clone(seatIDs)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	q := database.Conn(ctx, r.db)
	for _, seatID := range ordered {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(showtimeID), int32(seatID)); err != nil {
			r.log.Error("Failed to lock seat key",
				zap.Error(err),
				zap.Int64("showtime_id", showtimeID),
				zap.Int64("seat_id", seatID),
			)
			return fmt.Errorf("lock seat %d of showtime %d: %w", seatID, showtimeID, err)
		}
	}

	return nil
}

// FindSeatHolders returns every live booking of the showtime that contains one
// of seatIDs, locking those booking rows. Rows are locked in booking id order so
// lockers of disjoint seat sets sharing holders cannot deadlock.
func (r *bookingRepository) FindSeatHolders(ctx context.Context, showtimeID int64, seatIDs []int64) ([]entity.SeatHolder, error) {
	query := `
		SELECT b.id, bs.seat_id, b.status,
			COALESCE(b.expire_at > ` + dbNow + `, false) AS hold_active
		FROM bookings b
		JOIN booking_seats bs ON bs.booking_id = b.id
		WHERE b.showtime_id = $1
			AND b.status NOT IN ('cancelled', 'expired')
			AND bs.seat_id = ANY($2)
		ORDER BY b.id, bs.seat_id
		FOR UPDATE OF b
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, showtimeID, seatIDs)
	if err != nil {
		r.log.Error("Failed to scan seat holders", zap.Error(err), zap.Int64("showtime_id", showtimeID))
		return nil, fmt.Errorf("find seat holders for showtime %d: %w", showtimeID, err)
	}
	defer rows.Close()

	var holders []entity.SeatHolder
	for rows.Next() {
		var h entity.SeatHolder
		if err := rows.Scan(&h.BookingID, &h.SeatID, &h.Status, &h.HoldActive); err != nil {
			return nil, fmt.Errorf("scan seat holder: %w", err)
		}
		holders = append(holders, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat holders: %w", err)
	}

	return holders, nil
}

// ExpireLapsedHolds flips every held booking past its deadline to expired in
// one statement.
func (r *bookingRepository) ExpireLapsedHolds(ctx context.Context) (int64, error) {
	query := `
		UPDATE bookings
		SET status = 'expired', updated_at = ` + dbNow + `
		WHERE status = 'held' AND expire_at <= ` + dbNow

	result, err := database.Conn(ctx, r.db).Exec(ctx, query)
	if err != nil {
		r.log.Error("Failed to expire lapsed holds", zap.Error(err))
		return 0, fmt.Errorf("expire lapsed holds: %w", err)
	}

	return result.RowsAffected(), nil
}
