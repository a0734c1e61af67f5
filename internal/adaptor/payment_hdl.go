package adaptor

import (
	"encoding/json"
	"io"
	"net/http"

	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/dto/response"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	service usecase.SettlementService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.SettlementService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// InitiatePayment handles POST /api/bookings/{bookingId}/payment-intent
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	var req request.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}
	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	intent, err := h.service.InitiatePayment(r.Context(), bookingID, req.Provider)
	if err != nil {
		handleServiceError(w, h.log, err, "initiate payment")
		return
	}

	utils.ResponseSuccess(w, "Payment initiated", response.PaymentIntentResponse{
		Booking:              response.BookingToResponse(intent.Booking, nil),
		Payment:              response.PaymentToResponse(intent.Payment),
		Reused:               intent.Reused,
		HoldRemainingSeconds: intent.ExpiresIn,
	})
}

// ConfirmPayment handles POST /api/bookings/{bookingId}/confirm-payment
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	var req request.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}
	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), bookingID, usecase.DirectSettlement{
		Method:       req.PaymentMethod,
		ProviderRef:  req.PaymentPayload.TransactionRef,
		ResponseCode: req.PaymentPayload.ResponseCode,
		Amount:       req.PaymentPayload.Amount,
	})
	if err != nil {
		handleServiceError(w, h.log, err, "confirm payment")
		return
	}

	msg := "Payment confirmed"
	if result.AlreadyPaid {
		msg = "Booking already paid"
	}
	utils.ResponseSuccess(w, msg, settlementResponse(result))
}

// SyncPayment handles POST /api/bookings/{bookingId}/sync-payment
func (h *PaymentHandler) SyncPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(r)
	if !ok {
		utils.ResponseBadRequest(w, "Invalid booking id", nil)
		return
	}

	result, err := h.service.SyncPayment(r.Context(), bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "sync payment")
		return
	}

	resp := response.SyncPaymentResponse{ProviderStatus: string(result.Status)}
	if result.Settlement != nil {
		settled := settlementResponse(result.Settlement)
		resp.Settled = true
		resp.Settlement = &settled
	}
	utils.ResponseSuccess(w, "success", resp)
}

// Webhook handles POST /api/payments/webhook/{provider}
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), provider, payload, r.Header)
	if err != nil {
		handleServiceError(w, h.log, err, "handle webhook")
		return
	}

	utils.WriteJSON(w, http.StatusOK, response.WebhookResponse{
		Received:  true,
		Settled:   result.Settlement != nil,
		BookingID: result.BookingID,
		Note:      result.Message,
	})
}

func settlementResponse(result *usecase.SettlementResult) response.SettlementResponse {
	return response.SettlementResponse{
		Booking:     response.BookingToResponse(result.Booking, nil),
		Payment:     response.PaymentToResponsePtr(result.Payment),
		AlreadyPaid: result.AlreadyPaid,
	}
}
