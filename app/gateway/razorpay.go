package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com"

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	AccountNumber string
	BaseURL       string
	HTTPTimeout   time.Duration
}

// RazorpayClient talks to the Razorpay order and RazorpayX payout APIs.
type RazorpayClient struct {
	cfg    RazorpayConfig
	client *http.Client
}

func NewRazorpayClient(cfg RazorpayConfig) *RazorpayClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultRazorpayBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &RazorpayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderOutput, error) {
	if strings.TrimSpace(c.cfg.KeyID) == "" || strings.TrimSpace(c.cfg.KeySecret) == "" {
		return nil, errors.New("razorpay api keys are not configured")
	}

	capture := 0
	if input.Capture {
		capture = 1
	}
	request := map[string]interface{}{
		"amount":          input.AmountMinor,
		"currency":        input.Currency,
		"receipt":         input.Receipt,
		"payment_capture": capture,
	}
	if len(input.Notes) > 0 {
		request["notes"] = input.Notes
	}

	body, err := c.postJSON(ctx, "/v1/orders", request)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	orderID := strings.TrimSpace(payload.ID)
	if orderID == "" {
		return nil, errors.New("razorpay order id missing")
	}

	return &CreateOrderOutput{OrderID: orderID}, nil
}

func (c *RazorpayClient) CreatePayout(ctx context.Context, input *CreatePayoutInput) (*CreatePayoutOutput, error) {
	if strings.TrimSpace(c.cfg.KeyID) == "" || strings.TrimSpace(c.cfg.KeySecret) == "" {
		return nil, errors.New("razorpay api keys are not configured")
	}
	if strings.TrimSpace(c.cfg.AccountNumber) == "" {
		return nil, errors.New("razorpay account number is not configured")
	}

	request := map[string]interface{}{
		"account_number":       c.cfg.AccountNumber,
		"fund_account_id":      input.FundAccountID,
		"amount":               input.AmountMinor,
		"currency":             input.Currency,
		"mode":                 input.Mode,
		"purpose":              input.Purpose,
		"reference_id":         input.ReferenceID,
		"narration":            input.Narration,
		"queue_if_low_balance": true,
	}

	body, err := c.postJSON(ctx, "/v1/payouts", request)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	payoutID := strings.TrimSpace(payload.ID)
	if payoutID == "" {
		return nil, errors.New("razorpay payout id missing")
	}

	return &CreatePayoutOutput{PayoutID: payoutID, Status: strings.TrimSpace(payload.Status)}, nil
}

// ParseWebhook verifies the X-Razorpay-Signature HMAC over the raw body and
// parses the event into the tagged union. A signature mismatch returns
// ErrInvalidSignature and nothing else happens.
func (c *RazorpayClient) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return nil, errors.New("razorpay webhook secret is not configured")
	}
	if !verifyWebhookSignature(payload, signature, c.cfg.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID               string `json:"id"`
					OrderID          string `json:"order_id"`
					Amount           int64  `json:"amount"`
					Currency         string `json:"currency"`
					Method           string `json:"method"`
					ErrorCode        string `json:"error_code"`
					ErrorDescription string `json:"error_description"`
				} `json:"entity"`
			} `json:"payment"`
			Payout struct {
				Entity struct {
					ID            string `json:"id"`
					UTR           string `json:"utr"`
					FailureReason string `json:"failure_reason"`
				} `json:"entity"`
			} `json:"payout"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &WebhookEvent{RawType: event.Event}
	switch event.Event {
	case "payment.authorized", "payment.captured":
		result.Kind = WebhookPaymentAuthorized
	case "payment.failed":
		result.Kind = WebhookPaymentFailed
	case "payout.processing", "payout.queued":
		result.Kind = WebhookPayoutProcessing
	case "payout.processed":
		result.Kind = WebhookPayoutProcessed
	case "payout.failed", "payout.rejected":
		result.Kind = WebhookPayoutFailed
	case "payout.reversed":
		result.Kind = WebhookPayoutReversed
	default:
		result.Kind = WebhookUnknown
		return result, nil
	}

	switch result.Kind {
	case WebhookPaymentAuthorized, WebhookPaymentFailed:
		p := event.Payload.Payment.Entity
		result.Payment = &PaymentWebhook{
			GatewayPaymentID: strings.TrimSpace(p.ID),
			GatewayOrderID:   strings.TrimSpace(p.OrderID),
			AmountMinor:      p.Amount,
			Currency:         strings.TrimSpace(p.Currency),
			Method:           strings.TrimSpace(p.Method),
			ErrorCode:        strings.TrimSpace(p.ErrorCode),
			ErrorDescription: strings.TrimSpace(p.ErrorDescription),
		}
	default:
		p := event.Payload.Payout.Entity
		result.Payout = &PayoutWebhook{
			GatewayPayoutID: strings.TrimSpace(p.ID),
			UTR:             strings.TrimSpace(p.UTR),
			FailureReason:   strings.TrimSpace(p.FailureReason),
		}
	}

	return result, nil
}

func (c *RazorpayClient) postJSON(ctx context.Context, path string, request interface{}) ([]byte, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func parseAPIError(statusCode int, body []byte) error {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: statusCode}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Error.Code
		apiErr.Description = payload.Error.Description
	}
	if apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(string(body))
	}
	return apiErr
}

func verifyWebhookSignature(payload []byte, signature string, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	candidate, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(candidate, expected)
}
