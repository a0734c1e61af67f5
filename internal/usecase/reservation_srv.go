package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/event"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/telemetry"
	"cinema-reservation/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ReservationService interface {
	LockSeats(ctx context.Context, req *request.LockSeatsRequest) (*LockResult, error)
	CancelBooking(ctx context.Context, bookingID int64) (*CancelResult, error)
	GetBookingStatus(ctx context.Context, bookingID int64) (*entity.Booking, error)
	ListUserBookings(ctx context.Context, userID int64, req *request.PaginatedRequest) ([]BookingDetail, int64, error)
}

// LockResult is either a held booking or the seats that blocked it.
type LockResult struct {
	Success   bool
	Booking   *entity.Booking
	Seats     []*entity.BookingSeat
	Conflicts []int64
}

type CancelResult struct {
	Booking           *entity.Booking
	CancelledPayments int64
}

type BookingDetail struct {
	Booking *entity.Booking
	Seats   []*entity.BookingSeat
}

// errSeatConflict rolls back the lock transaction; callers see a LockResult.
var errSeatConflict = errors.New("seat conflict")

type reservationService struct {
	repo      *repository.Repository
	tx        database.Transactor
	publisher event.Publisher
	hold      time.Duration
	log       *zap.Logger
}

func NewReservationService(deps Deps) ReservationService {
	hold := deps.Policy.HoldDuration
	if hold <= 0 {
		hold = 120 * time.Second
	}

	return &reservationService{
		repo:      deps.Repo,
		tx:        deps.Tx,
		publisher: deps.Publisher,
		hold:      hold,
		log:       deps.Log.With(zap.String("service", "reservation")),
	}
}

// LockSeats holds the requested seats for the policy hold duration. Overlapping
// lockers are serialized by LockSeatKeys; a seat is taken when a paid booking or
// an unexpired hold already contains it.
func (s *reservationService) LockSeats(ctx context.Context, req *request.LockSeatsRequest) (*LockResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "reservation.LockSeats",
		attribute.Int64("showtime_id", req.ShowtimeID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Lock seats validation failed", zap.Any("errors", errs))
		return nil, newValidationError(errs)
	}

	showtime, err := s.repo.Showtime.FindByID(ctx, req.ShowtimeID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load showtime: %w", err)
	}
	if showtime == nil {
		return nil, fmt.Errorf("showtime %d: %w", req.ShowtimeID, ErrShowtimeNotFound)
	}
	if showtime.SecondsUntilStart <= 0 {
		return nil, newValidationError(map[string]string{"showtime_id": "Showtime has already started"})
	}

	bookingSeats, total, err := s.priceSeats(ctx, showtime, req.SeatIDs)
	if err != nil {
		return nil, err
	}

	booking := &entity.Booking{
		UserID:      req.UserID,
		ShowtimeID:  showtime.ID,
		BookingCode: utils.GenerateBookingCode(),
		TotalPrice:  total,
		Status:      entity.BookingStatusHeld,
	}

	var conflicts []int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Booking.LockSeatKeys(ctx, showtime.ID, req.SeatIDs); err != nil {
			return err
		}

		holders, err := s.repo.Booking.FindSeatHolders(ctx, showtime.ID, req.SeatIDs)
		if err != nil {
			return err
		}

		conflicts = blockedSeats(holders)
		if len(conflicts) > 0 {
			return errSeatConflict
		}

		if err := s.repo.Booking.Create(ctx, booking, s.hold); err != nil {
			return err
		}
		return s.repo.BookingSeat.CreateBatch(ctx, booking.ID, bookingSeats)
	})

	if errors.Is(err, errSeatConflict) {
		s.log.Info("Seats already taken",
			zap.Int64("showtime_id", showtime.ID),
			zap.Int64s("conflicts", conflicts),
		)
		span.SetAttributes(attribute.Int64Slice("conflicts", conflicts))
		return &LockResult{Success: false, Conflicts: conflicts}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		s.log.Error("Failed to lock seats", zap.Error(err), zap.Int64("showtime_id", showtime.ID))
		return nil, fmt.Errorf("lock seats: %w", err)
	}

	s.log.Info("Seats held",
		zap.Int64("booking_id", booking.ID),
		zap.String("booking_code", booking.BookingCode),
		zap.Int64s("seat_ids", req.SeatIDs),
		zap.Float64("total_price", booking.TotalPrice),
	)

	return &LockResult{Success: true, Booking: booking, Seats: bookingSeats}, nil
}

// priceSeats checks every seat belongs to the showtime's hall and prices it at
// base_price x price_modifier.
func (s *reservationService) priceSeats(ctx context.Context, showtime *entity.Showtime, seatIDs []int64) ([]*entity.BookingSeat, float64, error) {
	seats, err := s.repo.Seat.FindByIDs(ctx, seatIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("load seats: %w", err)
	}

	byID := make(map[int64]*entity.Seat, len(seats))
	for _, seat := range seats {
		if seat.HallID == showtime.HallID {
			byID[seat.ID] = seat
		}
	}

	var unknown []string
	bookingSeats := make([]*entity.BookingSeat, 0, len(seatIDs))
	var totalCents int64
	for _, id := range seatIDs {
		seat, ok := byID[id]
		if !ok {
			unknown = append(unknown, strconv.FormatInt(id, 10))
			continue
		}
		modifier := seat.PriceModifier
		if modifier <= 0 {
			modifier = 1
		}
		price := utils.RoundMoney(showtime.BasePrice * modifier)
		totalCents += utils.ToCents(price)
		bookingSeats = append(bookingSeats, &entity.BookingSeat{SeatID: id, Price: price})
	}

	if len(unknown) > 0 {
		return nil, 0, newValidationError(map[string]string{
			"seat_ids": "Unknown seats for this showtime: " + strings.Join(unknown, ", "),
		})
	}

	return bookingSeats, utils.FromCents(totalCents), nil
}

func blockedSeats(holders []entity.SeatHolder) []int64 {
	var conflicts []int64
	for _, h := range holders {
		if h.Blocks() {
			conflicts = append(conflicts, h.SeatID)
		}
	}
	slices.Sort(conflicts)
	return slices.Compact(conflicts)
}

// CancelBooking releases a held booking and cancels its pending payments so the
// seats are free immediately.
func (s *reservationService) CancelBooking(ctx context.Context, bookingID int64) (*CancelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "reservation.CancelBooking", attribute.Int64("booking_id", bookingID))
	defer span.End()

	result := &CancelResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.repo.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
		}
		if booking.Status != entity.BookingStatusHeld {
			return &StateError{Err: ErrBookingNotCancellable, Booking: booking.ID, Status: booking.Status}
		}

		if err := s.repo.Booking.TransitionStatus(ctx, booking.ID, entity.BookingStatusHeld, entity.BookingStatusCancelled); err != nil {
			return err
		}
		booking.Status = entity.BookingStatusCancelled

		cancelled, err := s.repo.Payment.CancelPendingByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}

		result.Booking = booking
		result.CancelledPayments = cancelled
		return nil
	})
	if err != nil {
		if !IsNotFoundError(err) && !IsBusinessRuleError(err) {
			telemetry.RecordError(span, err)
			s.log.Error("Failed to cancel booking", zap.Error(err), zap.Int64("booking_id", bookingID))
		}
		return nil, err
	}

	s.log.Info("Booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("cancelled_payments", result.CancelledPayments),
	)

	publishAfterCommit(ctx, s.publisher, s.log, event.BookingEvent{
		Type:        event.BookingCancelled,
		BookingID:   result.Booking.ID,
		BookingCode: result.Booking.BookingCode,
		UserID:      result.Booking.UserID,
		ShowtimeID:  result.Booking.ShowtimeID,
		Amount:      result.Booking.TotalPrice,
	})

	return result, nil
}

func (s *reservationService) GetBookingStatus(ctx context.Context, bookingID int64) (*entity.Booking, error) {
	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
	}
	return booking, nil
}

func (s *reservationService) ListUserBookings(ctx context.Context, userID int64, req *request.PaginatedRequest) ([]BookingDetail, int64, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, 0, newValidationError(errs)
	}

	bookings, err := s.repo.Booking.FindByUserID(ctx, userID, req.Limit(), req.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list user bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByUserID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count user bookings: %w", err)
	}

	ids := make([]int64, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	seats, err := s.repo.BookingSeat.FindByBookingIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load booking seats: %w", err)
	}

	details := make([]BookingDetail, len(bookings))
	for i, b := range bookings {
		details[i] = BookingDetail{Booking: b, Seats: seats[b.ID]}
	}

	return details, total, nil
}
