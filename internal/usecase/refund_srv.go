package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/event"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/telemetry"
	"cinema-reservation/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RefundService interface {
	RefundBooking(ctx context.Context, bookingID, requesterID int64, reason string) (*RefundResult, error)
}

type RefundResult struct {
	Booking  *entity.Booking
	Original *entity.Payment
	Refund   *entity.Payment
	Provider *gateway.RefundResponse
}

type refundService struct {
	repo      *repository.Repository
	tx        database.Transactor
	gateways  *gateway.Registry
	publisher event.Publisher
	policy    utils.BookingConfig
	log       *zap.Logger
}

func NewRefundService(deps Deps) RefundService {
	return &refundService{
		repo:      deps.Repo,
		tx:        deps.Tx,
		gateways:  deps.Gateways,
		publisher: deps.Publisher,
		policy:    deps.Policy,
		log:       deps.Log.With(zap.String("service", "refund")),
	}
}

func (s *refundService) minLead() time.Duration {
	if s.policy.RefundMinLead <= 0 {
		return 2 * time.Hour
	}
	return s.policy.RefundMinLead
}

func (s *refundService) providerTimeout() time.Duration {
	if s.policy.ProviderTimeout <= 0 {
		return 15 * time.Second
	}
	return s.policy.ProviderTimeout
}

// RefundBooking returns the money for a paid booking and moves it to refunded.
// The provider call runs inside the transaction: if the provider refuses or
// times out, nothing is written and the booking stays paid.
func (s *refundService) RefundBooking(ctx context.Context, bookingID, requesterID int64, reason string) (*RefundResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "refund.RefundBooking", attribute.Int64("booking_id", bookingID))
	defer span.End()

	if len(reason) > 500 {
		return nil, newValidationError(map[string]string{"reason": "Must be at most 500 characters"})
	}

	var (
		result   RefundResult
		accepted bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.repo.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
		}
		if booking.Status != entity.BookingStatusPaid {
			return &StateError{Err: ErrBookingNotRefundable, Booking: booking.ID, Status: booking.Status}
		}
		if !booking.OwnedBy(requesterID) {
			return ErrNotBookingOwner
		}

		if err := s.checkWindow(ctx, booking.ShowtimeID); err != nil {
			return err
		}

		original, err := s.repo.Payment.FindLatestPaid(ctx, booking.ID, true)
		if err != nil {
			return err
		}
		if original == nil || !original.HasProviderRef() {
			return fmt.Errorf("booking %d has no provider-confirmed payment: %w", booking.ID, ErrManualRefundRequired)
		}
		gw, err := s.gateways.Get(original.Method)
		if err != nil {
			return fmt.Errorf("payment %d via %s: %w", original.ID, original.Method, ErrManualRefundRequired)
		}

		refundID := utils.GenerateRefundID()
		resp, err := s.callProvider(ctx, gw, &gateway.RefundRequest{
			IdempotencyKey: refundID,
			ProviderRef:    *original.ProviderRef,
			Amount:         original.Amount,
			Currency:       s.policy.Currency,
			Reason:         reason,
		})
		if err != nil {
			return err
		}
		accepted = true

		refund := &entity.Payment{
			BookingID:    booking.ID,
			Method:       entity.PaymentMethodRefund,
			PaymentCode:  refundID,
			Amount:       -original.Amount,
			Status:       entity.PaymentStatusRefunded,
			ProviderRef:  stringPtr(resp.ProviderRefundID),
			ResponseCode: stringPtr(string(resp.Status)),
			Note:         stringPtr(reason),
		}
		if err := s.repo.Payment.Create(ctx, refund); err != nil {
			return err
		}
		if err := s.repo.Payment.TransitionStatus(ctx, original.ID, entity.PaymentStatusPaid, entity.PaymentStatusRefunded); err != nil {
			return err
		}
		original.Status = entity.PaymentStatusRefunded

		if err := s.repo.Booking.TransitionStatus(ctx, booking.ID, entity.BookingStatusPaid, entity.BookingStatusRefunded); err != nil {
			return err
		}
		booking.Status = entity.BookingStatusRefunded

		result = RefundResult{Booking: booking, Original: original, Refund: refund, Provider: resp}
		return nil
	})
	if err != nil {
		var windowErr *RefundWindowError
		switch {
		case accepted:
			// The provider moved the money but the ledger did not follow.
			telemetry.RecordError(span, err)
			s.log.Error("Refund accepted by provider but not recorded", zap.Error(err), zap.Int64("booking_id", bookingID))
		case IsProviderError(err):
			telemetry.RecordError(span, err)
			s.log.Warn("Refund rejected by provider", zap.Error(err), zap.Int64("booking_id", bookingID))
		case errors.As(err, &windowErr), errors.Is(err, ErrNotBookingOwner), errors.Is(err, ErrManualRefundRequired),
			IsNotFoundError(err), IsBusinessRuleError(err):
			s.log.Info("Refund refused", zap.Error(err), zap.Int64("booking_id", bookingID))
		default:
			telemetry.RecordError(span, err)
			s.log.Error("Failed to refund booking", zap.Error(err), zap.Int64("booking_id", bookingID))
		}
		return nil, err
	}

	s.log.Info("Booking refunded",
		zap.Int64("booking_id", bookingID),
		zap.String("refund_id", result.Refund.PaymentCode),
		zap.String("provider_status", string(result.Provider.Status)),
		zap.Float64("amount", result.Original.Amount),
	)

	publishAfterCommit(ctx, s.publisher, s.log, event.BookingEvent{
		Type:        event.BookingRefunded,
		BookingID:   result.Booking.ID,
		BookingCode: result.Booking.BookingCode,
		UserID:      result.Booking.UserID,
		ShowtimeID:  result.Booking.ShowtimeID,
		Amount:      result.Original.Amount,
		Reason:      reason,
	})

	return &result, nil
}

// checkWindow rejects refunds once the showtime is closer than the minimum lead.
func (s *refundService) checkWindow(ctx context.Context, showtimeID int64) error {
	showtime, err := s.repo.Showtime.FindByID(ctx, showtimeID)
	if err != nil {
		return err
	}
	if showtime == nil {
		return fmt.Errorf("showtime %d: %w", showtimeID, ErrShowtimeNotFound)
	}

	lead := s.minLead()
	if showtime.SecondsUntilStart < int64(lead/time.Second) {
		return &RefundWindowError{
			ShowtimeStart:    showtime.StartTime,
			RemainingSeconds: max(showtime.SecondsUntilStart, 0),
			MinLead:          lead,
		}
	}
	return nil
}

func (s *refundService) callProvider(ctx context.Context, gw gateway.PaymentGateway, req *gateway.RefundRequest) (*gateway.RefundResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	resp, err := gw.Refund(callCtx, req)
	if err != nil {
		return nil, wrapProviderError(gw.Name(), err)
	}
	if !resp.Accepted() {
		code := resp.Code
		if code == "" {
			code = string(resp.Status)
		}
		return nil, &ProviderError{Provider: gw.Name(), Code: code, Message: resp.Message}
	}
	return resp, nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
