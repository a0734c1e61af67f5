package entity

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethodRefund marks the negative-amount rows written by the refund workflow.
const PaymentMethodRefund = "refund"

type Payment struct {
	Base
	BookingID    int64         `db:"booking_id"`
	Method       string        `db:"method"`
	PaymentCode  string        `db:"payment_code"`
	Amount       float64       `db:"amount"`
	Status       PaymentStatus `db:"status"`
	ProviderRef  *string       `db:"provider_ref"`
	ResponseCode *string       `db:"response_code"`
	CheckoutRef  *string       `db:"checkout_ref"`
	Note         *string       `db:"note"`
	ExpireAt     *time.Time    `db:"expire_at"`

	// Lapsed is set by locking reads: a pending row whose expire_at has passed
	// on the database clock.
	Lapsed bool `db:"-"`
}

// HasProviderRef reports whether the payment went through an authenticated provider channel.
func (p *Payment) HasProviderRef() bool {
	return p.ProviderRef != nil && *p.ProviderRef != ""
}
