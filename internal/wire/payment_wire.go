package wire

import (
	"cinema-reservation/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wirePayment(r chi.Router, paymentHandler *adaptor.PaymentHandler) {
	r.Post("/api/bookings/{bookingId}/payment-intent", paymentHandler.InitiatePayment)
	r.Post("/api/bookings/{bookingId}/confirm-payment", paymentHandler.ConfirmPayment)
	r.Post("/api/bookings/{bookingId}/sync-payment", paymentHandler.SyncPayment)

	// Provider callbacks authenticate by signature, not bearer token.
	r.Post("/api/payments/webhook/{provider}", paymentHandler.Webhook)
}
