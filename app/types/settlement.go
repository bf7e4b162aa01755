package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateEnrollmentPaymentRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	UserID       string `json:"user_id"`
	PlanID       string `json:"plan_id"`

	BaseAmount     decimal.Decimal `json:"base_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`

	VendorID              string           `json:"vendor_id"`
	CommissionRatePercent *decimal.Decimal `json:"commission_rate_percent"`

	BillingName    string `json:"billing_name"`
	BillingEmail   string `json:"billing_email"`
	BillingPhone   string `json:"billing_phone"`
	BillingAddress string `json:"billing_address"`
}

func NewCreateEnrollmentPaymentRequestFromContext(ctx echo.Context) (*CreateEnrollmentPaymentRequest, error) {
	var body CreateEnrollmentPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.EnrollmentID = strings.TrimSpace(body.EnrollmentID)
	body.UserID = strings.TrimSpace(body.UserID)
	body.PlanID = strings.TrimSpace(body.PlanID)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.VendorID = strings.TrimSpace(body.VendorID)
	body.BillingName = strings.TrimSpace(body.BillingName)
	body.BillingEmail = strings.TrimSpace(body.BillingEmail)
	body.BillingPhone = strings.TrimSpace(body.BillingPhone)
	body.BillingAddress = strings.TrimSpace(body.BillingAddress)

	return &body, nil
}

func (r *CreateEnrollmentPaymentRequest) Validate() error {
	if r.EnrollmentID == "" {
		return errors.New("enrollment_id is required")
	}
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.PlanID == "" {
		return errors.New("plan_id is required")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if !r.TotalAmount.IsPositive() {
		return errors.New("total_amount must be > 0")
	}
	if r.BaseAmount.IsNegative() || r.DiscountAmount.IsNegative() || r.TaxAmount.IsNegative() || r.FeeAmount.IsNegative() {
		return errors.New("amounts must not be negative")
	}
	if r.CommissionRatePercent != nil {
		if r.CommissionRatePercent.IsNegative() || r.CommissionRatePercent.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("commission_rate_percent must be between 0 and 100")
		}
	}
	return nil
}

type GetInvoiceRequest struct {
	InvoiceNumber string
}

func NewGetInvoiceRequestFromContext(ctx echo.Context) (*GetInvoiceRequest, error) {
	return &GetInvoiceRequest{InvoiceNumber: strings.TrimSpace(ctx.Param("number"))}, nil
}

func (r *GetInvoiceRequest) Validate() error {
	if r.InvoiceNumber == "" {
		return errors.New("invoice number is required")
	}
	return nil
}

type GetPayoutRequest struct {
	ID uint64
}

func NewGetPayoutRequestFromContext(ctx echo.Context) (*GetPayoutRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPayoutRequest{ID: id}, nil
}

func (r *GetPayoutRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payout id")
	}
	return nil
}

type CancelPayoutRequest struct {
	ID     uint64
	Reason string `json:"reason"`
}

func NewCancelPayoutRequestFromContext(ctx echo.Context) (*CancelPayoutRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	req := &CancelPayoutRequest{ID: id}
	if ctx.Request().ContentLength > 0 {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := ctx.Bind(&body); err != nil {
			return nil, err
		}
		req.Reason = strings.TrimSpace(body.Reason)
	}
	return req, nil
}

func (r *CancelPayoutRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payout id")
	}
	return nil
}

type GatewayWebhookRequest struct {
	Signature string
	RawBody   []byte
}

func NewGatewayWebhookRequestFromContext(ctx echo.Context) (*GatewayWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}
	return &GatewayWebhookRequest{
		Signature: strings.TrimSpace(ctx.Request().Header.Get("X-Razorpay-Signature")),
		RawBody:   rawBody,
	}, nil
}

func (r *GatewayWebhookRequest) Validate() error {
	if r.Signature == "" {
		return errors.New("webhook signature is required")
	}
	if len(r.RawBody) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type InvoiceResponse struct {
	ID                    uint64 `json:"id"`
	InvoiceNumber         string `json:"invoice_number"`
	EnrollmentID          string `json:"enrollment_id"`
	UserID                string `json:"user_id"`
	PlanID                string `json:"plan_id"`
	BaseAmount            string `json:"base_amount"`
	DiscountAmount        string `json:"discount_amount"`
	TaxAmount             string `json:"tax_amount"`
	FeeAmount             string `json:"fee_amount"`
	TotalAmount           string `json:"total_amount"`
	Currency              string `json:"currency"`
	Status                string `json:"status"`
	PaymentTransactionID  uint64 `json:"payment_transaction_id,omitempty"`
	GatewayOrderID        string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID      string `json:"gateway_payment_id,omitempty"`
	VendorID              string `json:"vendor_id,omitempty"`
	CommissionRatePercent string `json:"commission_rate_percent,omitempty"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

type PaymentTransactionResponse struct {
	ID               uint64 `json:"id"`
	InvoiceID        uint64 `json:"invoice_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

type PayoutResponse struct {
	ID                    uint64 `json:"id"`
	PaymentTransactionID  uint64 `json:"payment_transaction_id"`
	VendorID              string `json:"vendor_id"`
	GrossAmount           string `json:"gross_amount"`
	CommissionAmount      string `json:"commission_amount"`
	NetAmount             string `json:"net_amount"`
	CommissionRatePercent string `json:"commission_rate_percent"`
	Currency              string `json:"currency"`
	FundAccountID         string `json:"fund_account_id"`
	ReferenceID           string `json:"reference_id"`
	Status                string `json:"status"`
	GatewayPayoutID       string `json:"gateway_payout_id,omitempty"`
	UTR                   string `json:"utr,omitempty"`
	ErrorCode             string `json:"error_code,omitempty"`
	ErrorMessage          string `json:"error_message,omitempty"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

type EnrollmentPaymentResponse struct {
	Success        bool                        `json:"success"`
	GatewayOrderID string                      `json:"gateway_order_id,omitempty"`
	ErrorMessage   string                      `json:"error_message,omitempty"`
	Invoice        *InvoiceResponse            `json:"invoice"`
	Transaction    *PaymentTransactionResponse `json:"transaction"`
}

type InvoiceEnvelopeResponse struct {
	Invoice *InvoiceResponse `json:"invoice"`
}

type PayoutEnvelopeResponse struct {
	Payout *PayoutResponse `json:"payout"`
}
