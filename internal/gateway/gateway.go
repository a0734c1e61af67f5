package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownGateway   = errors.New("unknown payment gateway")
)

// PaymentGateway is the provider capability used by settlement and refunds:
// create a charge, authenticate its notifications, refund it and look it up.
type PaymentGateway interface {
	Name() string
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
	QueryTransaction(ctx context.Context, transactionCode string) (*TransactionInfo, error)
}

type ChargeRequest struct {
	BookingID      int64
	BookingCode    string
	Reference      string
	Amount         float64
	Currency       string
	Description    string
	IdempotencyKey string
}

type ChargeResponse struct {
	TransactionCode string
	CheckoutRef     string
}

// WebhookEvent is an authenticated provider notification.
type WebhookEvent struct {
	ID              string
	Succeeded       bool
	TransactionCode string
	ProviderRef     string
	BookingCode     string
	Amount          float64
	OccurredAt      time.Time
}

type RefundRequest struct {
	IdempotencyKey string
	ProviderRef    string
	Amount         float64
	Currency       string
	Reason         string
}

type RefundStatus string

const (
	RefundSucceeded RefundStatus = "succeeded"
	RefundPending   RefundStatus = "pending"
	RefundFailed    RefundStatus = "failed"
)

type RefundResponse struct {
	Status           RefundStatus
	ProviderRefundID string
	Code             string
	Message          string
}

// Accepted is true for statuses where the provider has committed the funds.
func (r *RefundResponse) Accepted() bool {
	return r.Status == RefundSucceeded || r.Status == RefundPending
}

type TransactionStatus string

const (
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
)

type TransactionInfo struct {
	TransactionCode string
	ProviderRef     string
	Status          TransactionStatus
	Amount          float64
	OccurredAt      time.Time
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]PaymentGateway
}

func NewRegistry(gateways ...PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]PaymentGateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[strings.ToLower(g.Name())] = g
	}
	return r
}

func (r *Registry) Get(name string) (PaymentGateway, error) {
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// ToMinorUnits converts a decimal amount into the provider's smallest unit.
func ToMinorUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}
