package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// StripeGateway drives PaymentIntents. The intent id is both the transaction
// code and the provider reference used for refunds.
type StripeGateway struct {
	config StripeGatewayConfig
}

func NewStripeGateway(config StripeGatewayConfig) (*StripeGateway, error) {
	if config.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

func (g *StripeGateway) currency(requested string) string {
	if requested != "" {
		return requested
	}
	return g.config.Currency
}

func (g *StripeGateway) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, errors.New("charge request is required")
	}

	currency := g.currency(req.Currency)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount, currency)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"booking_id":   strconv.FormatInt(req.BookingID, 10),
			"booking_code": req.BookingCode,
			"reference":    req.Reference,
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &ChargeResponse{
		TransactionCode: pi.ID,
		CheckoutRef:     pi.ClientSecret,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header. Only
// payment_intent.succeeded is reported as a successful payment; every other
// verified event comes back with Succeeded=false so the caller can acknowledge it.
func (g *StripeGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:         event.ID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	out.Succeeded = true
	out.TransactionCode = pi.ID
	out.ProviderRef = pi.ID
	out.BookingCode = pi.Metadata["booking_code"]
	out.Amount = FromMinorUnits(pi.AmountReceived, string(pi.Currency))
	return out, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	if req == nil || req.ProviderRef == "" {
		return nil, errors.New("refund requires a provider reference")
	}

	currency := g.currency(req.Currency)
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderRef),
		Amount:        stripe.Int64(ToMinorUnits(req.Amount, currency)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata: map[string]string{
			"refund_id": req.IdempotencyKey,
			"note":      req.Reason,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	rf, err := refund.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return &RefundResponse{
				Status:  RefundFailed,
				Code:    string(stripeErr.Code),
				Message: stripeErr.Msg,
			}, nil
		}
		return nil, fmt.Errorf("create refund: %w", err)
	}

	resp := &RefundResponse{ProviderRefundID: rf.ID, Code: string(rf.Status)}
	switch rf.Status {
	case stripe.RefundStatusSucceeded:
		resp.Status = RefundSucceeded
	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		resp.Status = RefundPending
	default:
		resp.Status = RefundFailed
		resp.Message = string(rf.FailureReason)
	}
	return resp, nil
}

func (g *StripeGateway) QueryTransaction(ctx context.Context, transactionCode string) (*TransactionInfo, error) {
	if transactionCode == "" {
		return nil, errors.New("transaction code is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(transactionCode, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	info := &TransactionInfo{
		TransactionCode: pi.ID,
		ProviderRef:     pi.ID,
		Amount:          FromMinorUnits(pi.AmountReceived, string(pi.Currency)),
		OccurredAt:      time.Unix(pi.Created, 0).UTC(),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		info.Status = TransactionSucceeded
	case stripe.PaymentIntentStatusCanceled:
		info.Status = TransactionFailed
	default:
		info.Status = TransactionPending
	}
	return info, nil
}
