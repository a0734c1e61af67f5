package usecase

import (
	"strings"
	"time"

	"cinema-reservation/pkg/utils"
)

// Settlement is a verified statement that a booking was paid. It is either a
// WebhookSettlement or a DirectSettlement.
type Settlement interface {
	Validate() error
	method() string
	providerRef() *string
	responseCode() *string
	// amount returns what was paid, defaulting to the booking total when the
	// channel does not report one.
	amount(total float64) float64
	// paymentCode is used when no pending row exists to update.
	paymentCode() string
}

// WebhookSettlement comes from an authenticated provider notification.
type WebhookSettlement struct {
	Provider        string
	TransactionCode string
	ProviderRef     string
	Amount          float64
	OccurredAt      time.Time
}

func (w WebhookSettlement) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(w.Provider) == "" {
		fields["provider"] = "This field is required"
	}
	if strings.TrimSpace(w.TransactionCode) == "" {
		fields["transaction_code"] = "This field is required"
	}
	if w.Amount <= 0 {
		fields["amount"] = "Must be greater than 0"
	}
	if len(fields) > 0 {
		return newValidationError(fields)
	}
	return nil
}

func (w WebhookSettlement) method() string { return w.Provider }

func (w WebhookSettlement) providerRef() *string {
	ref := w.ProviderRef
	if ref == "" {
		ref = w.TransactionCode
	}
	return &ref
}

func (w WebhookSettlement) responseCode() *string { return nil }

func (w WebhookSettlement) amount(float64) float64 { return w.Amount }

func (w WebhookSettlement) paymentCode() string { return w.TransactionCode }

// DirectSettlement comes from a client-initiated confirm call.
type DirectSettlement struct {
	Method       string
	ProviderRef  string
	ResponseCode string
	Amount       *float64
}

func (d DirectSettlement) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Method) == "" {
		fields["payment_method"] = "This field is required"
	}
	if d.Amount != nil && *d.Amount <= 0 {
		fields["payment_payload.amount"] = "Must be greater than 0"
	}
	if len(fields) > 0 {
		return newValidationError(fields)
	}
	return nil
}

func (d DirectSettlement) method() string { return d.Method }

func (d DirectSettlement) providerRef() *string {
	if d.ProviderRef == "" {
		return nil
	}
	ref := d.ProviderRef
	return &ref
}

func (d DirectSettlement) responseCode() *string {
	if d.ResponseCode == "" {
		return nil
	}
	code := d.ResponseCode
	return &code
}

func (d DirectSettlement) amount(total float64) float64 {
	if d.Amount == nil {
		return total
	}
	return *d.Amount
}

func (d DirectSettlement) paymentCode() string {
	return utils.GeneratePaymentCode()
}
