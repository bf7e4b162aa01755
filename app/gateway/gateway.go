package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// APIError is a processor-side rejection. Code and Description are the
// gateway's own values, preserved verbatim for support and audit.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error: status=%d code=%s description=%s", e.StatusCode, e.Code, e.Description)
}

type CreateOrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Capture     bool
	Notes       map[string]string
}

type CreateOrderOutput struct {
	OrderID string
}

type CreatePayoutInput struct {
	FundAccountID string
	AmountMinor   int64
	Currency      string
	Mode          string
	Purpose       string
	ReferenceID   string
	Narration     string
}

type CreatePayoutOutput struct {
	PayoutID string
	Status   string
}

type WebhookKind int

const (
	WebhookUnknown WebhookKind = iota
	WebhookPaymentAuthorized
	WebhookPaymentFailed
	WebhookPayoutProcessing
	WebhookPayoutProcessed
	WebhookPayoutFailed
	WebhookPayoutReversed
)

type PaymentWebhook struct {
	GatewayPaymentID string
	GatewayOrderID   string
	AmountMinor      int64
	Currency         string
	Method           string
	ErrorCode        string
	ErrorDescription string
}

type PayoutWebhook struct {
	GatewayPayoutID string
	UTR             string
	FailureReason   string
}

// WebhookEvent is the tagged union over inbound gateway notifications.
// Exactly one of Payment/Payout is set, matching Kind.
type WebhookEvent struct {
	Kind    WebhookKind
	RawType string
	Payment *PaymentWebhook
	Payout  *PayoutWebhook
}

// Client wraps the external payment processor. Implementations must use
// bounded timeouts; a timeout is a failed attempt, never a hang.
type Client interface {
	CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderOutput, error)
	CreatePayout(ctx context.Context, input *CreatePayoutInput) (*CreatePayoutOutput, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
