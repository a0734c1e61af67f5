package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const SandboxSignatureHeader = "X-Sandbox-Signature"

// SandboxGateway is an in-process provider for development and tests. Charges
// live in memory; notifications are JSON bodies signed with HMAC-SHA256.
type SandboxGateway struct {
	secret []byte

	mu           sync.Mutex
	transactions map[string]*TransactionInfo
	refunds      map[string]*RefundResponse
	refundErr    error
	refundResp   *RefundResponse
}

func NewSandboxGateway(webhookSecret string) *SandboxGateway {
	return &SandboxGateway{
		secret:       []byte(webhookSecret),
		transactions: make(map[string]*TransactionInfo),
		refunds:      make(map[string]*RefundResponse),
	}
}

func (g *SandboxGateway) Name() string {
	return "sandbox"
}

// SandboxNotification is the webhook body the sandbox channel delivers.
type SandboxNotification struct {
	TransactionCode   string    `json:"transaction_code"`
	Amount            float64   `json:"amount"`
	ProviderReference string    `json:"provider_reference"`
	Timestamp         time.Time `json:"timestamp"`
	Status            string    `json:"status"`
}

func (g *SandboxGateway) CreateCharge(_ context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, errors.New("charge request is required")
	}

	code := fmt.Sprintf("SBX-%s-%s", req.Reference, strings.ToUpper(uuid.NewString()[:8]))

	g.mu.Lock()
	g.transactions[code] = &TransactionInfo{
		TransactionCode: code,
		Status:          TransactionPending,
		Amount:          req.Amount,
		OccurredAt:      time.Now().UTC(),
	}
	g.mu.Unlock()

	return &ChargeResponse{
		TransactionCode: code,
		CheckoutRef:     "sandbox://checkout/" + code,
	}, nil
}

// Sign returns the signature header value for body.
func (g *SandboxGateway) Sign(body []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *SandboxGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	got, err := hex.DecodeString(header.Get(SandboxSignatureHeader))
	if err != nil || len(got) == 0 {
		return nil, ErrInvalidSignature
	}
	want, _ := hex.DecodeString(g.Sign(payload))
	if !hmac.Equal(got, want) {
		return nil, ErrInvalidSignature
	}

	var n SandboxNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode sandbox notification: %w", err)
	}

	return &WebhookEvent{
		ID:              n.TransactionCode,
		Succeeded:       n.Status == "" || n.Status == string(TransactionSucceeded),
		TransactionCode: n.TransactionCode,
		ProviderRef:     n.ProviderReference,
		Amount:          n.Amount,
		OccurredAt:      n.Timestamp,
	}, nil
}

// Complete simulates the payer finishing a charge.
func (g *SandboxGateway) Complete(transactionCode, providerRef string, amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.transactions[transactionCode] = &TransactionInfo{
		TransactionCode: transactionCode,
		ProviderRef:     providerRef,
		Status:          TransactionSucceeded,
		Amount:          amount,
		OccurredAt:      time.Now().UTC(),
	}
}

// FailRefundsWith makes subsequent refunds return resp or err.
func (g *SandboxGateway) FailRefundsWith(resp *RefundResponse, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refundResp = resp
	g.refundErr = err
}

// Refund is idempotent on the request's key.
func (g *SandboxGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	if req == nil || req.ProviderRef == "" {
		return nil, errors.New("refund requires a provider reference")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refundErr != nil {
		return nil, g.refundErr
	}
	if g.refundResp != nil {
		resp := *g.refundResp
		return &resp, nil
	}
	if prev, ok := g.refunds[req.IdempotencyKey]; ok {
		return prev, nil
	}

	resp := &RefundResponse{
		Status:           RefundSucceeded,
		ProviderRefundID: "SBXR-" + strings.TrimPrefix(req.IdempotencyKey, "REFUND-"),
		Code:             "1",
	}
	g.refunds[req.IdempotencyKey] = resp
	return resp, nil
}

func (g *SandboxGateway) QueryTransaction(_ context.Context, transactionCode string) (*TransactionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	info, ok := g.transactions[transactionCode]
	if !ok {
		return nil, fmt.Errorf("sandbox transaction %s not found", transactionCode)
	}
	out := *info
	return &out, nil
}
