package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/event"
	"cinema-reservation/pkg/utils"

	"go.uber.org/zap"
)

const afterCommitTimeout = 10 * time.Second

// ticketPayload is what the QR code encodes. Rendering happens downstream.
type ticketPayload struct {
	BookingID   int64     `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	ShowtimeID  int64     `json:"showtime_id"`
	SeatIDs     []int64   `json:"seat_ids"`
	Token       string    `json:"token"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ticketIssuer runs once a booking is paid and committed. Failures are
// logged; the booking stays paid either way.
type ticketIssuer struct {
	repo      *repository.Repository
	publisher event.Publisher
	log       *zap.Logger
}

func newTicketIssuer(repo *repository.Repository, publisher event.Publisher, log *zap.Logger) *ticketIssuer {
	return &ticketIssuer{
		repo:      repo,
		publisher: publisher,
		log:       log.With(zap.String("component", "ticket")),
	}
}

func (t *ticketIssuer) issue(ctx context.Context, booking *entity.Booking) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
	defer cancel()

	seats, err := t.repo.BookingSeat.FindByBookingID(ctx, booking.ID)
	if err != nil {
		t.log.Error("Failed to load seats for ticket", zap.Error(err), zap.Int64("booking_id", booking.ID))
		return
	}
	seatIDs := make([]int64, len(seats))
	for i, s := range seats {
		seatIDs[i] = s.SeatID
	}

	token, payload, err := buildTicket(booking, seatIDs, time.Now().UTC())
	if err != nil {
		t.log.Error("Failed to build ticket", zap.Error(err), zap.Int64("booking_id", booking.ID))
		return
	}

	stored, err := t.repo.Booking.SetTicket(ctx, booking.ID, token, payload)
	if err != nil {
		t.log.Error("Failed to store ticket", zap.Error(err), zap.Int64("booking_id", booking.ID))
		return
	}
	if !stored {
		// A concurrent confirmation issued it first.
		current, err := t.repo.Booking.FindByID(ctx, booking.ID)
		if err != nil || current == nil || current.TicketToken == nil {
			t.log.Warn("Ticket already issued but could not be reloaded", zap.Int64("booking_id", booking.ID))
			return
		}
		token, payload = *current.TicketToken, *current.TicketPayload
	}
	booking.TicketToken = &token
	booking.TicketPayload = &payload

	if err := t.publisher.Publish(ctx, event.BookingEvent{
		Type:          event.BookingPaid,
		BookingID:     booking.ID,
		BookingCode:   booking.BookingCode,
		UserID:        booking.UserID,
		ShowtimeID:    booking.ShowtimeID,
		SeatIDs:       seatIDs,
		Amount:        booking.TotalPrice,
		TicketToken:   token,
		TicketPayload: payload,
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		t.log.Error("Failed to publish paid event", zap.Error(err), zap.Int64("booking_id", booking.ID))
	}
}

func buildTicket(booking *entity.Booking, seatIDs []int64, issuedAt time.Time) (string, string, error) {
	token, err := utils.GenerateVerificationToken()
	if err != nil {
		return "", "", fmt.Errorf("generate ticket token: %w", err)
	}

	raw, err := json.Marshal(ticketPayload{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		ShowtimeID:  booking.ShowtimeID,
		SeatIDs:     seatIDs,
		Token:       token,
		IssuedAt:    issuedAt,
	})
	if err != nil {
		return "", "", fmt.Errorf("encode ticket payload: %w", err)
	}

	return token, string(raw), nil
}

// publishAfterCommit sends evt detached from the request so a client
// disconnect does not drop it.
func publishAfterCommit(ctx context.Context, publisher event.Publisher, log *zap.Logger, evt event.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
	defer cancel()

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Error("Failed to publish booking event",
			zap.Error(err),
			zap.String("type", string(evt.Type)),
			zap.Int64("booking_id", evt.BookingID),
		)
	}
}
