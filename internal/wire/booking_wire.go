package wire

import (
	"cinema-reservation/internal/adaptor"
	"cinema-reservation/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	verifier *middleware.TokenVerifier,
	log *zap.Logger,
) {
	// Guests may hold seats; a bearer token makes the booking theirs.
	r.With(middleware.OptionalAuth(verifier, log)).Post("/api/bookings/lock-seat", bookingHandler.LockSeats)

	r.Get("/api/bookings/{bookingId}/status", bookingHandler.GetBookingStatus)
	r.Post("/api/bookings/{bookingId}/cancel", bookingHandler.CancelBooking)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(verifier, log))

		r.Post("/api/bookings/{bookingId}/refund", bookingHandler.RefundBooking)
		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)
	})
}
