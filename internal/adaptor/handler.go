package adaptor

import (
	"errors"
	"net/http"
	"strconv"

	"cinema-reservation/internal/dto/response"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Payment *PaymentHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Reservation, service.Refund, log),
		Payment: NewPaymentHandler(service.Settlement, log),
	}
}

// bookingIDParam reads the {bookingId} path segment.
func bookingIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookingId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// handleServiceError maps usecase errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var (
		validationErr *usecase.ValidationError
		windowErr     *usecase.RefundWindowError
		providerErr   *usecase.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		log.Warn(operation+" validation failed", zap.Error(err))
		utils.ResponseBadRequest(w, "Validation failed", validationErr.Fields)

	case usecase.IsNotFoundError(err), errors.Is(err, gateway.ErrUnknownGateway):
		log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, notFoundMessage(err))

	case errors.As(err, &windowErr):
		log.Info(operation+" refused - refund window closed", zap.Error(err))
		utils.WriteJSON(w, http.StatusBadRequest, response.RefundWindowResponse{
			Success:              false,
			Message:              "Refunds are no longer available for this showtime",
			ShowtimeStart:        windowErr.ShowtimeStart,
			TimeRemainingSeconds: windowErr.RemainingSeconds,
		})

	case errors.Is(err, usecase.ErrAmountMismatch):
		log.Warn(operation+" failed - amount mismatch", zap.Error(err))
		utils.ResponseBadRequest(w, "Paid amount does not match booking amount", nil)

	case errors.Is(err, usecase.ErrBookingExpired):
		log.Info(operation+" failed - booking expired", zap.Error(err))
		utils.ResponseBadRequest(w, "Booking expired", nil)

	case usecase.IsBusinessRuleError(err):
		log.Info(operation+" failed - invalid state", zap.Error(err))
		utils.ResponseBadRequest(w, stateMessage(err), nil)

	case errors.Is(err, usecase.ErrInvalidWebhook):
		log.Warn(operation+" failed - invalid webhook", zap.Error(err))
		utils.ResponseBadRequest(w, "Invalid webhook signature or payload", nil)

	case errors.Is(err, usecase.ErrNotBookingOwner):
		log.Warn(operation+" failed - not owner", zap.Error(err))
		utils.ResponseForbidden(w, "You do not own this booking")

	case errors.Is(err, usecase.ErrManualRefundRequired):
		log.Error(operation+" needs manual refund", zap.Error(err))
		utils.ResponseUnprocessable(w, "Refund requires manual intervention")

	case errors.As(err, &providerErr):
		log.Error(operation+" failed - payment provider", zap.Error(err))
		utils.WriteJSON(w, http.StatusBadGateway, response.ProviderErrorResponse{
			Success:      false,
			Message:      "Payment provider request failed",
			Provider:     providerErr.Provider,
			ProviderCode: providerErr.Code,
		})

	default:
		log.Error("Failed to "+operation, zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrShowtimeNotFound):
		return "Showtime not found"
	case errors.Is(err, usecase.ErrPaymentNotFound):
		return "No pending payment for this booking"
	case errors.Is(err, gateway.ErrUnknownGateway):
		return "Unknown payment provider"
	default:
		return "Booking not found"
	}
}

func stateMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrBookingNotConfirmable):
		return "Booking is not in a confirmable state"
	case errors.Is(err, usecase.ErrBookingNotCancellable):
		return "Only held bookings can be cancelled"
	case errors.Is(err, usecase.ErrBookingNotRefundable):
		return "Only paid bookings can be refunded"
	case errors.Is(err, usecase.ErrBookingNotPayable):
		return "Booking can no longer be paid"
	default:
		return err.Error()
	}
}
