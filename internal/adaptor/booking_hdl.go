package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/dto/response"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"go.uber.org/zap"
)

type BookingHandler struct {
	reservation usecase.ReservationService
	refund      usecase.RefundService
	log         *zap.Logger
}

func NewBookingHandler(reservation usecase.ReservationService, refund usecase.RefundService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		reservation: reservation,
		refund:      refund,
		log:         log.With(zap.String("handler", "booking")),
	}
}

// LockSeats handles POST /api/bookings/lock-seat
func (h *BookingHandler) LockSeats(w http.ResponseWriter, r *http.Request) {
	var req request.LockSeatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var seatErr *request.SeatIDError
		if errors.As(err, &seatErr) {
			utils.ResponseBadRequest(w, "Validation failed", map[string]string{"seat_ids": seatErr.Error()})
			return
		}
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	// The token owner wins; a different user_id in the body is refused.
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		if req.UserID != nil && *req.UserID != userID {
			utils.ResponseForbidden(w, "user_id does not match the authenticated user")
			return
		}
		req.UserID = &userID
	} else {
		req.UserID = nil
	}

	result, err := h.reservation.LockSeats(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.log, err, "lock seats")
		return
	}

	if !result.Success {
		utils.WriteJSON(w, http.StatusConflict, response.LockSeatsResponse{
			Success:   false,
			Message:   "Some seats are already taken",
			Conflicts: result.Conflicts,
		})
		return
	}

	booking := response.BookingToResponse(result.Booking, result.Seats)
	utils.WriteJSON(w, http.StatusCreated, response.LockSeatsResponse{
		Success: true,
		Message: "Seats locked",
		Booking: &booking,
	})
}

// GetBookingStatus handles GET /api/bookings/{bookingId}/status
func (h *BookingHandler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	booking, err := h.reservation.GetBookingStatus(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "get booking status")
		return
	}

	utils.ResponseSuccess(w, "success", response.BookingStatusResponse{
		ID:          booking.ID,
		Status:      booking.Status,
		BookingCode: booking.BookingCode,
	})
}

// CancelBooking handles POST /api/bookings/{bookingId}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	result, err := h.reservation.CancelBooking(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "cancel booking")
		return
	}

	utils.ResponseSuccess(w, "Booking cancelled", response.CancelResponse{
		Booking:           response.BookingToResponse(result.Booking, nil),
		CancelledPayments: result.CancelledPayments,
	})
}

// RefundBooking handles POST /api/bookings/{bookingId}/refund (protected)
func (h *BookingHandler) RefundBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	var req request.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}
	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.refund.RefundBooking(r.Context(), bookingID, userID, req.Reason)
	if err != nil {
		handleServiceError(w, h.log, err, "refund booking")
		return
	}

	utils.ResponseSuccess(w, "Booking refunded", response.RefundResponse{
		Booking:        response.BookingToResponse(result.Booking, nil),
		Refund:         response.PaymentToResponse(result.Refund),
		ProviderStatus: string(result.Provider.Status),
	})
}

// GetUserBookings handles GET /api/user/bookings (protected)
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	req := &request.PaginatedRequest{
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", request.DefaultPerPage),
	}

	details, total, err := h.reservation.ListUserBookings(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, h.log, err, "get user bookings")
		return
	}

	bookings := make([]response.BookingResponse, len(details))
	for i, d := range details {
		bookings[i] = response.BookingToResponse(d.Booking, d.Seats)
	}

	utils.ResponseSuccess(w, "success", response.NewPaginatedResponse(bookings, req.Page, req.Limit(), total))
}
