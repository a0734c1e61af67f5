package event

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	BookingPaid      Type = "booking.paid"
	BookingCancelled Type = "booking.cancelled"
	BookingRefunded  Type = "booking.refunded"
)

// BookingEvent is handed to the notification pipeline after a commit.
// Paid events carry the ticket so the mailer can render it.
type BookingEvent struct {
	Type          Type      `json:"type"`
	BookingID     int64     `json:"booking_id"`
	BookingCode   string    `json:"booking_code"`
	UserID        *int64    `json:"user_id,omitempty"`
	ShowtimeID    int64     `json:"showtime_id"`
	SeatIDs       []int64   `json:"seat_ids,omitempty"`
	Amount        float64   `json:"amount"`
	TicketToken   string    `json:"ticket_token,omitempty"`
	TicketPayload string    `json:"ticket_payload,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt BookingEvent) error
	Close() error
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.With(zap.String("publisher", "log"))}
}

func (p *LogPublisher) Publish(_ context.Context, evt BookingEvent) error {
	p.log.Info("Booking event",
		zap.String("type", string(evt.Type)),
		zap.Int64("booking_id", evt.BookingID),
		zap.String("booking_code", evt.BookingCode),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
