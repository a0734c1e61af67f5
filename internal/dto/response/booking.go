package response

import (
	"time"

	"cinema-reservation/internal/data/entity"
)

type BookingSeatResponse struct {
	SeatID int64   `json:"seat_id"`
	Price  float64 `json:"price"`
}

type BookingResponse struct {
	ID          int64                 `json:"id"`
	BookingCode string                `json:"booking_code"`
	UserID      *int64                `json:"user_id"`
	ShowtimeID  int64                 `json:"showtime_id"`
	TotalPrice  float64               `json:"total_price"`
	Status      entity.BookingStatus  `json:"status"`
	ExpireAt    *time.Time            `json:"expire_at,omitempty"`
	TicketToken *string               `json:"ticket_token,omitempty"`
	Seats       []BookingSeatResponse `json:"seats,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

type PaymentResponse struct {
	ID           int64                `json:"id"`
	BookingID    int64                `json:"booking_id"`
	Method       string               `json:"method"`
	PaymentCode  string               `json:"payment_code"`
	Amount       float64              `json:"amount"`
	Status       entity.PaymentStatus `json:"status"`
	ProviderRef  *string              `json:"provider_ref,omitempty"`
	ResponseCode *string              `json:"response_code,omitempty"`
	CheckoutRef  *string              `json:"checkout_ref,omitempty"`
	Note         *string              `json:"note,omitempty"`
	ExpireAt     *time.Time           `json:"expire_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

type LockSeatsResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Booking   *BookingResponse `json:"booking,omitempty"`
	Conflicts []int64          `json:"conflicts,omitempty"`
}

type BookingStatusResponse struct {
	ID          int64                `json:"id"`
	Status      entity.BookingStatus `json:"status"`
	BookingCode string               `json:"booking_code"`
}

type SettlementResponse struct {
	Booking     BookingResponse  `json:"booking"`
	Payment     *PaymentResponse `json:"payment"`
	AlreadyPaid bool             `json:"already_paid"`
}

type PaymentIntentResponse struct {
	Booking              BookingResponse `json:"booking"`
	Payment              PaymentResponse `json:"payment"`
	Reused               bool            `json:"reused"`
	HoldRemainingSeconds int64           `json:"hold_remaining_seconds"`
}

type SyncPaymentResponse struct {
	ProviderStatus string              `json:"provider_status"`
	Settled        bool                `json:"settled"`
	Settlement     *SettlementResponse `json:"settlement,omitempty"`
}

type CancelResponse struct {
	Booking           BookingResponse `json:"booking"`
	CancelledPayments int64           `json:"cancelled_payments"`
}

type RefundResponse struct {
	Booking        BookingResponse `json:"booking"`
	Refund         PaymentResponse `json:"refund"`
	ProviderStatus string          `json:"provider_status"`
}

type RefundWindowResponse struct {
	Success              bool      `json:"success"`
	Message              string    `json:"message"`
	ShowtimeStart        time.Time `json:"showtime_start"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

type ProviderErrorResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Provider     string `json:"provider"`
	ProviderCode string `json:"provider_code,omitempty"`
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	Settled   bool   `json:"settled"`
	BookingID int64  `json:"booking_id,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Helper converters
func BookingToResponse(b *entity.Booking, seats []*entity.BookingSeat) BookingResponse {
	resp := BookingResponse{
		ID:          b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		TotalPrice:  b.TotalPrice,
		Status:      b.Status,
		TicketToken: b.TicketToken,
		CreatedAt:   b.CreatedAt,
	}
	if b.Status == entity.BookingStatusHeld {
		resp.ExpireAt = b.ExpireAt
	}
	for _, s := range seats {
		resp.Seats = append(resp.Seats, BookingSeatResponse{SeatID: s.SeatID, Price: s.Price})
	}
	return resp
}

func PaymentToResponse(p *entity.Payment) PaymentResponse {
	return PaymentResponse{
		ID:           p.ID,
		BookingID:    p.BookingID,
		Method:       p.Method,
		PaymentCode:  p.PaymentCode,
		Amount:       p.Amount,
		Status:       p.Status,
		ProviderRef:  p.ProviderRef,
		ResponseCode: p.ResponseCode,
		CheckoutRef:  p.CheckoutRef,
		Note:         p.Note,
		ExpireAt:     p.ExpireAt,
		CreatedAt:    p.CreatedAt,
	}
}

// PaymentToResponsePtr is PaymentToResponse for optional payments.
func PaymentToResponsePtr(p *entity.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	resp := PaymentToResponse(p)
	return &resp
}
