package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/telemetry"
	"cinema-reservation/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SettlementService interface {
	ConfirmPayment(ctx context.Context, bookingID int64, settlement Settlement) (*SettlementResult, error)
	InitiatePayment(ctx context.Context, bookingID int64, provider string) (*PaymentIntent, error)
	SyncPayment(ctx context.Context, bookingID int64) (*SyncResult, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) (*WebhookResult, error)
}

type SettlementResult struct {
	Booking *entity.Booking
	Payment *entity.Payment
	// AlreadyPaid is set when an earlier confirmation won; nothing was written.
	AlreadyPaid bool
}

type PaymentIntent struct {
	Booking *entity.Booking
	Payment *entity.Payment
	Reused  bool
	// ExpiresIn is how long the hold, and so the charge, stays payable.
	ExpiresIn int64
}

type SyncResult struct {
	Status     gateway.TransactionStatus
	Settlement *SettlementResult
}

type WebhookResult struct {
	BookingID  int64
	Message    string
	Settlement *SettlementResult
}

var bookingReferencePattern = regexp.MustCompile(`BOOK(\d+)`)

type settlementService struct {
	repo     *repository.Repository
	tx       database.Transactor
	gateways *gateway.Registry
	tickets  *ticketIssuer
	policy   utils.BookingConfig
	log      *zap.Logger
}

func NewSettlementService(deps Deps, tickets *ticketIssuer) SettlementService {
	return &settlementService{
		repo:     deps.Repo,
		tx:       deps.Tx,
		gateways: deps.Gateways,
		tickets:  tickets,
		policy:   deps.Policy,
		log:      deps.Log.With(zap.String("service", "settlement")),
	}
}

// ConfirmPayment turns a held booking into a paid one. It is idempotent: a
// booking that is already paid is returned as-is with AlreadyPaid set. A
// lapsed hold is marked expired and committed before ErrBookingExpired is
// returned.
func (s *settlementService) ConfirmPayment(ctx context.Context, bookingID int64, settlement Settlement) (*SettlementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.ConfirmPayment", attribute.Int64("booking_id", bookingID))
	defer span.End()

	if settlement == nil {
		return nil, newValidationError(map[string]string{"payment_method": "This field is required"})
	}
	if err := settlement.Validate(); err != nil {
		return nil, err
	}

	var (
		result  SettlementResult
		expired *entity.Booking
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.repo.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
		}

		switch {
		case booking.Status == entity.BookingStatusPaid:
			paid, err := s.repo.Payment.FindLatestPaid(ctx, booking.ID, false)
			if err != nil {
				return err
			}
			result = SettlementResult{Booking: booking, Payment: paid, AlreadyPaid: true}
			return nil
		case booking.Status != entity.BookingStatusHeld:
			return &StateError{Err: ErrBookingNotConfirmable, Booking: booking.ID, Status: booking.Status}
		case booking.HoldLapsed:
			if err := s.expireHold(ctx, booking); err != nil {
				return err
			}
			expired = booking
			return nil
		}

		paid := utils.RoundMoney(settlement.amount(booking.TotalPrice))
		if !utils.AmountCovers(paid, booking.TotalPrice) {
			return fmt.Errorf("%w: paid %.2f, expected %.2f", ErrAmountMismatch, paid, booking.TotalPrice)
		}
		if utils.ToCents(paid) > utils.ToCents(booking.TotalPrice) {
			s.log.Warn("Booking overpaid",
				zap.Int64("booking_id", booking.ID),
				zap.Float64("paid", paid),
				zap.Float64("expected", booking.TotalPrice),
			)
		}

		pending, err := s.repo.Payment.FindLatestPending(ctx, booking.ID)
		if err != nil {
			return err
		}

		var payment *entity.Payment
		if pending != nil {
			pending.Method = settlement.method()
			pending.Amount = paid
			pending.ProviderRef = settlement.providerRef()
			pending.ResponseCode = settlement.responseCode()
			if err := s.repo.Payment.MarkPaid(ctx, pending); err != nil {
				return err
			}
			payment = pending
		} else {
			payment = &entity.Payment{
				BookingID:    booking.ID,
				Method:       settlement.method(),
				PaymentCode:  settlement.paymentCode(),
				Amount:       paid,
				Status:       entity.PaymentStatusPaid,
				ProviderRef:  settlement.providerRef(),
				ResponseCode: settlement.responseCode(),
			}
			if err := s.repo.Payment.Create(ctx, payment); err != nil {
				return err
			}
		}

		if err := s.repo.Booking.TransitionStatus(ctx, booking.ID, entity.BookingStatusHeld, entity.BookingStatusPaid); err != nil {
			return err
		}
		booking.Status = entity.BookingStatusPaid

		result = SettlementResult{Booking: booking, Payment: payment}
		return nil
	})
	if err != nil {
		if !IsNotFoundError(err) && !IsBusinessRuleError(err) {
			telemetry.RecordError(span, err)
			s.log.Error("Failed to confirm payment", zap.Error(err), zap.Int64("booking_id", bookingID))
		}
		return nil, err
	}

	if expired != nil {
		s.log.Info("Payment arrived after hold lapsed", zap.Int64("booking_id", bookingID))
		return nil, &StateError{Err: ErrBookingExpired, Booking: expired.ID, Status: expired.Status}
	}

	if result.AlreadyPaid {
		s.log.Info("Booking already paid", zap.Int64("booking_id", bookingID))
		if result.Booking.TicketToken == nil {
			s.tickets.issue(ctx, result.Booking)
		}
		return &result, nil
	}

	s.log.Info("Booking paid",
		zap.Int64("booking_id", bookingID),
		zap.Int64("payment_id", result.Payment.ID),
		zap.String("method", result.Payment.Method),
		zap.Float64("amount", result.Payment.Amount),
	)

	s.tickets.issue(ctx, result.Booking)

	return &result, nil
}

// expireHold moves a lapsed held booking to expired along with its pending charge.
func (s *settlementService) expireHold(ctx context.Context, booking *entity.Booking) error {
	if err := s.repo.Booking.TransitionStatus(ctx, booking.ID, entity.BookingStatusHeld, entity.BookingStatusExpired); err != nil {
		return err
	}
	booking.Status = entity.BookingStatusExpired

	pending, err := s.repo.Payment.FindLatestPending(ctx, booking.ID)
	if err != nil {
		return err
	}
	if pending != nil {
		return s.repo.Payment.TransitionStatus(ctx, pending.ID, entity.PaymentStatusPending, entity.PaymentStatusExpired)
	}
	return nil
}

// InitiatePayment opens a provider charge for a held booking, reusing the
// pending one when it is still live and from the same provider.
func (s *settlementService) InitiatePayment(ctx context.Context, bookingID int64, provider string) (*PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.InitiatePayment",
		attribute.Int64("booking_id", bookingID),
		attribute.String("provider", provider),
	)
	defer span.End()

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, newValidationError(map[string]string{"provider": "Unsupported payment provider"})
	}

	var (
		intent  PaymentIntent
		expired *entity.Booking
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.repo.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
		}
		if booking.Status != entity.BookingStatusHeld {
			return &StateError{Err: ErrBookingNotPayable, Booking: booking.ID, Status: booking.Status}
		}
		if booking.HoldLapsed {
			if err := s.expireHold(ctx, booking); err != nil {
				return err
			}
			expired = booking
			return nil
		}

		pending, err := s.repo.Payment.FindLatestPending(ctx, booking.ID)
		if err != nil {
			return err
		}
		if pending != nil && !pending.Lapsed && pending.Method == gw.Name() && pending.CheckoutRef != nil {
			intent = PaymentIntent{Booking: booking, Payment: pending, Reused: true}
			return nil
		}

		idempotencyKey := booking.BookingCode
		if pending != nil {
			idempotencyKey = fmt.Sprintf("%s-%d", booking.BookingCode, pending.ID)
		}

		charge, err := s.createCharge(ctx, gw, &gateway.ChargeRequest{
			BookingID:      booking.ID,
			BookingCode:    booking.BookingCode,
			Reference:      utils.BookingReference(booking.ID),
			Amount:         booking.TotalPrice,
			Currency:       s.policy.Currency,
			Description:    "Cinema booking " + utils.BookingReference(booking.ID),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		checkout := charge.CheckoutRef
		payment := pending
		if payment == nil {
			payment = &entity.Payment{BookingID: booking.ID, Status: entity.PaymentStatusPending}
		}
		payment.Method = gw.Name()
		payment.PaymentCode = charge.TransactionCode
		payment.Amount = booking.TotalPrice
		payment.CheckoutRef = &checkout
		payment.ExpireAt = booking.ExpireAt

		if payment.ID == 0 {
			err = s.repo.Payment.Create(ctx, payment)
		} else {
			err = s.repo.Payment.RefreshPending(ctx, payment)
		}
		if err != nil {
			return err
		}

		intent = PaymentIntent{Booking: booking, Payment: payment}
		return nil
	})
	if err != nil {
		if !IsNotFoundError(err) && !IsBusinessRuleError(err) {
			telemetry.RecordError(span, err)
			s.log.Error("Failed to initiate payment", zap.Error(err), zap.Int64("booking_id", bookingID))
		}
		return nil, err
	}

	if expired != nil {
		return nil, &StateError{Err: ErrBookingExpired, Booking: expired.ID, Status: expired.Status}
	}

	if intent.Booking.ExpireAt != nil {
		intent.ExpiresIn = max(int64(time.Until(*intent.Booking.ExpireAt).Seconds()), 0)
	}

	s.log.Info("Payment initiated",
		zap.Int64("booking_id", bookingID),
		zap.String("provider", gw.Name()),
		zap.String("payment_code", intent.Payment.PaymentCode),
		zap.Bool("reused", intent.Reused),
	)

	return &intent, nil
}

func (s *settlementService) createCharge(ctx context.Context, gw gateway.PaymentGateway, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	charge, err := gw.CreateCharge(callCtx, req)
	if err != nil {
		return nil, wrapProviderError(gw.Name(), err)
	}
	return charge, nil
}

func (s *settlementService) providerTimeout() time.Duration {
	if s.policy.ProviderTimeout <= 0 {
		return 15 * time.Second
	}
	return s.policy.ProviderTimeout
}

// SyncPayment polls the provider for the booking's pending charge and settles
// the booking when the provider reports success.
func (s *settlementService) SyncPayment(ctx context.Context, bookingID int64) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.SyncPayment", attribute.Int64("booking_id", bookingID))
	defer span.End()

	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("booking %d: %w", bookingID, ErrBookingNotFound)
	}

	if booking.Status == entity.BookingStatusPaid {
		paid, err := s.repo.Payment.FindLatestPaid(ctx, booking.ID, false)
		if err != nil {
			return nil, err
		}
		return &SyncResult{
			Status:     gateway.TransactionSucceeded,
			Settlement: &SettlementResult{Booking: booking, Payment: paid, AlreadyPaid: true},
		}, nil
	}

	pending, err := s.latestPending(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fmt.Errorf("no pending charge for booking %d: %w", bookingID, ErrPaymentNotFound)
	}

	gw, err := s.gateways.Get(pending.Method)
	if err != nil {
		return nil, &ProviderError{Provider: pending.Method, Message: "provider is not configured", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	info, err := gw.QueryTransaction(callCtx, pending.PaymentCode)
	cancel()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, wrapProviderError(gw.Name(), err)
	}

	result := &SyncResult{Status: info.Status}
	if info.Status != gateway.TransactionSucceeded {
		return result, nil
	}

	settled, err := s.ConfirmPayment(ctx, booking.ID, WebhookSettlement{
		Provider:        gw.Name(),
		TransactionCode: info.TransactionCode,
		ProviderRef:     info.ProviderRef,
		Amount:          info.Amount,
		OccurredAt:      info.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	result.Settlement = settled
	return result, nil
}

// latestPending reads the pending row without holding its lock past the call.
func (s *settlementService) latestPending(ctx context.Context, bookingID int64) (*entity.Payment, error) {
	var pending *entity.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		pending, err = s.repo.Payment.FindLatestPending(ctx, bookingID)
		return err
	})
	return pending, err
}

// HandleWebhook authenticates a provider notification and settles the booking
// it refers to. Notifications that cannot change anything are acknowledged so
// the provider stops retrying; only bad signatures and amount mismatches are
// rejected.
func (s *settlementService) HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) (*WebhookResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.HandleWebhook", attribute.String("provider", provider))
	defer span.End()

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	evt, err := gw.ParseWebhook(payload, header)
	if err != nil {
		s.log.Warn("Rejected webhook", zap.String("provider", provider), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
	}

	log := s.log.With(
		zap.String("provider", gw.Name()),
		zap.String("event_id", evt.ID),
		zap.String("transaction_code", evt.TransactionCode),
	)

	if !evt.Succeeded {
		log.Info("Ignoring non-success webhook")
		return &WebhookResult{Message: "Event ignored"}, nil
	}

	bookingID, err := s.resolveBooking(ctx, evt)
	if err != nil {
		return nil, err
	}
	if bookingID == 0 {
		log.Warn("Webhook does not match any booking", zap.String("booking_code", evt.BookingCode))
		return &WebhookResult{Message: "Booking not found"}, nil
	}

	settled, err := s.ConfirmPayment(ctx, bookingID, WebhookSettlement{
		Provider:        gw.Name(),
		TransactionCode: evt.TransactionCode,
		ProviderRef:     evt.ProviderRef,
		Amount:          evt.Amount,
		OccurredAt:      evt.OccurredAt,
	})
	switch {
	case err == nil:
		msg := "Payment confirmed"
		if settled.AlreadyPaid {
			msg = "Payment already confirmed"
		}
		return &WebhookResult{BookingID: bookingID, Message: msg, Settlement: settled}, nil
	case errors.Is(err, ErrAmountMismatch), IsValidationError(err):
		log.Warn("Webhook amount rejected", zap.Int64("booking_id", bookingID), zap.Error(err))
		return nil, err
	case IsBusinessRuleError(err), IsNotFoundError(err):
		// Money arrived for a booking that can no longer be paid.
		log.Error("Webhook payment needs reconciliation", zap.Int64("booking_id", bookingID), zap.Error(err))
		return &WebhookResult{BookingID: bookingID, Message: err.Error()}, nil
	default:
		return nil, err
	}
}

// resolveBooking finds the booking by payment code, then booking code, then
// the BOOK<id> reference. Zero means no match.
func (s *settlementService) resolveBooking(ctx context.Context, evt *gateway.WebhookEvent) (int64, error) {
	if evt.TransactionCode != "" {
		payment, err := s.repo.Payment.FindByCode(ctx, evt.TransactionCode)
		if err != nil {
			return 0, err
		}
		if payment != nil {
			return payment.BookingID, nil
		}
	}

	if evt.BookingCode != "" {
		booking, err := s.repo.Booking.FindByCode(ctx, evt.BookingCode)
		if err != nil {
			return 0, err
		}
		if booking != nil {
			return booking.ID, nil
		}
	}

	for _, candidate := range []string{evt.TransactionCode, evt.BookingCode} {
		if m := bookingReferencePattern.FindStringSubmatch(candidate); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil && id > 0 {
				return id, nil
			}
		}
	}

	return 0, nil
}

func wrapProviderError(provider string, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = "timeout"
		pe.Message = "payment provider did not respond in time"
	}
	return pe
}
