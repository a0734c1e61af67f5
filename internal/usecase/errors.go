package usecase

import (
	"errors"
	"fmt"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/utils"
)

var (
	ErrValidation = errors.New("validation failed")

	ErrShowtimeNotFound = errors.New("showtime not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	ErrBookingExpired        = errors.New("booking expired")
	ErrBookingNotConfirmable = errors.New("booking not in a confirmable state")
	ErrBookingNotCancellable = errors.New("booking cannot be cancelled")
	ErrBookingNotRefundable  = errors.New("booking cannot be refunded")
	ErrBookingNotPayable     = errors.New("booking cannot accept a new payment")
	ErrAmountMismatch        = errors.New("paid amount does not match booking amount")
	ErrNotBookingOwner       = errors.New("booking belongs to another user")
	ErrManualRefundRequired  = errors.New("refund requires manual intervention")

	ErrInvalidWebhook = errors.New("invalid webhook")
)

// ValidationError carries per-field messages for the client.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, utils.FormatValidationErrors(e.Fields))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError reports a transition the booking state machine does not allow.
type StateError struct {
	Err     error
	Booking int64
	Status  entity.BookingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (booking %d is %s)", e.Err, e.Booking, e.Status)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// RefundWindowError is returned when the showtime starts too soon to refund.
type RefundWindowError struct {
	ShowtimeStart    time.Time
	RemainingSeconds int64
	MinLead          time.Duration
}

func (e *RefundWindowError) Error() string {
	return fmt.Sprintf("refunds close %s before the showtime; %ds remaining", e.MinLead, e.RemainingSeconds)
}

// ProviderError wraps a failed or timed-out call to the payment provider.
// Nothing was written; the operation is safe to retry.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("payment provider %s failed", e.Provider)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrShowtimeNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsBusinessRuleError covers expected refusals that leave state unchanged
// (apart from a lapsed hold being marked expired).
func IsBusinessRuleError(err error) bool {
	return errors.Is(err, ErrBookingExpired) ||
		errors.Is(err, ErrBookingNotConfirmable) ||
		errors.Is(err, ErrBookingNotCancellable) ||
		errors.Is(err, ErrBookingNotRefundable) ||
		errors.Is(err, ErrBookingNotPayable) ||
		errors.Is(err, ErrAmountMismatch)
}

func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
