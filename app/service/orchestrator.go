package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/app/repository"
)

// maxWriteAttempts bounds the re-read/retry loop around optimistic-version
// conflicts between the synchronous call path and webhook delivery.
const maxWriteAttempts = 3

type ledgerStore interface {
	View() *repository.Tx
	WithinTx(ctx context.Context, fn func(tx *repository.Tx) error) error
}

// EnrollmentPayment is the upstream enrollment/payment-request event.
type EnrollmentPayment struct {
	EnrollmentID string
	UserID       string
	PlanID       string

	BaseAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	FeeAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string

	VendorID              string
	CommissionRatePercent *decimal.Decimal

	BillingName    string
	BillingEmail   string
	BillingPhone   string
	BillingAddress string
}

// PaymentResult reports the synchronous initiation outcome to the caller.
type PaymentResult struct {
	Success        bool
	Invoice        *entity.Invoice
	Transaction    *entity.PaymentTransaction
	GatewayOrderID string
	ErrorMessage   string
}

// PaymentConfirmation is returned by the webhook-driven handlers. Applied is
// true only for the first transition out of PENDING; duplicate deliveries
// report Applied=false so callers do not re-trigger downstream work.
type PaymentConfirmation struct {
	Applied     bool
	Invoice     *entity.Invoice
	Transaction *entity.PaymentTransaction
}

type PaymentOrchestrator struct {
	ledger  ledgerStore
	gateway gateway.Client
	logger  logrus.FieldLogger
}

func NewPaymentOrchestrator(ledger ledgerStore, gatewayClient gateway.Client, logger logrus.FieldLogger) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		ledger:  ledger,
		gateway: gatewayClient,
		logger:  logger,
	}
}

// ProcessEnrollmentPayment creates the invoice and payment transaction in
// PENDING, then asks the gateway for an order. The intent rows are committed
// before the external call so a crash mid-call leaves a reconcilable record.
// Gateway failure marks the attempt FAILED; retries are the caller's
// responsibility via re-submission with a fresh invoice.
func (o *PaymentOrchestrator) ProcessEnrollmentPayment(ctx context.Context, req *EnrollmentPayment) (*PaymentResult, error) {
	if err := validateEnrollmentPayment(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	invoice := &entity.Invoice{
		InvoiceNumber:         "INV-" + uuid.NewString(),
		EnrollmentID:          req.EnrollmentID,
		UserID:                req.UserID,
		PlanID:                req.PlanID,
		BaseAmount:            req.BaseAmount,
		DiscountAmount:        req.DiscountAmount,
		TaxAmount:             req.TaxAmount,
		FeeAmount:             req.FeeAmount,
		TotalAmount:           req.TotalAmount,
		Currency:              req.Currency,
		Status:                entity.InvoiceStatusPending,
		VendorID:              normalizeOptionalString(req.VendorID),
		CommissionRatePercent: req.CommissionRatePercent,
		BillingName:           strings.TrimSpace(req.BillingName),
		BillingEmail:          strings.TrimSpace(req.BillingEmail),
		BillingPhone:          strings.TrimSpace(req.BillingPhone),
		BillingAddress:        strings.TrimSpace(req.BillingAddress),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	txn := &entity.PaymentTransaction{
		Amount:    req.TotalAmount,
		Currency:  req.Currency,
		Status:    entity.PaymentTransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := o.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
		if err := tx.Invoices.Create(ctx, invoice); err != nil {
			return err
		}
		txn.InvoiceID = invoice.ID
		if err := tx.Payments.Create(ctx, txn); err != nil {
			return err
		}
		invoice.PaymentTransactionID = &txn.ID
		return tx.Invoices.Update(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	order, err := o.gateway.CreateOrder(ctx, &gateway.CreateOrderInput{
		AmountMinor: MinorUnits(invoice.TotalAmount),
		Currency:    invoice.Currency,
		Receipt:     invoice.InvoiceNumber,
		Capture:     true,
		Notes: map[string]string{
			"enrollment_id":  invoice.EnrollmentID,
			"invoice_number": invoice.InvoiceNumber,
		},
	})
	if err != nil {
		o.logger.WithError(err).WithField("invoice_number", invoice.InvoiceNumber).Warn("Gateway order creation failed")
		if failErr := o.recordOrderFailure(ctx, invoice, txn, err); failErr != nil {
			return nil, failErr
		}
		return &PaymentResult{
			Success:      false,
			Invoice:      invoice,
			Transaction:  txn,
			ErrorMessage: err.Error(),
		}, nil
	}

	orderID := order.OrderID
	err = o.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
		invoice.GatewayOrderID = &orderID
		invoice.UpdatedAt = time.Now().UTC()
		if err := tx.Invoices.Update(ctx, invoice); err != nil {
			return err
		}
		txn.GatewayOrderID = &orderID
		txn.UpdatedAt = invoice.UpdatedAt
		return tx.Payments.Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		Success:        true,
		Invoice:        invoice,
		Transaction:    txn,
		GatewayOrderID: orderID,
	}, nil
}

// HandlePaymentSuccess settles the transaction identified by its gateway
// order id. Safe under at-least-once webhook delivery and safe to race the
// synchronous path: only the first transition out of PENDING applies.
func (o *PaymentOrchestrator) HandlePaymentSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, method string) (*PaymentConfirmation, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, ErrInvalidRequest
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		confirmation := &PaymentConfirmation{}
		err := o.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
			txn, err := tx.Payments.FindByGatewayOrderID(ctx, gatewayOrderID)
			if err != nil {
				return err
			}
			if txn == nil {
				return ErrTransactionNotFound
			}
			confirmation.Transaction = txn

			if txn.Terminal() {
				if txn.Status == entity.PaymentTransactionStatusCaptured {
					// Duplicate delivery of the same terminal outcome.
					invoice, err := tx.Invoices.FindByID(ctx, txn.InvoiceID)
					if err != nil {
						return err
					}
					confirmation.Invoice = invoice
					return nil
				}
				o.logConflict(gatewayOrderID, txn.Status, "success")
				return ErrStateConflict
			}

			now := time.Now().UTC()
			txn.Status = entity.PaymentTransactionStatusCaptured
			txn.GatewayPaymentID = normalizeOptionalString(gatewayPaymentID)
			txn.PaymentMethod = normalizeOptionalString(method)
			txn.UpdatedAt = now
			if err := tx.Payments.Update(ctx, txn); err != nil {
				return err
			}

			invoice, err := tx.Invoices.FindByID(ctx, txn.InvoiceID)
			if err != nil {
				return err
			}
			if invoice == nil {
				return ErrInvoiceNotFound
			}
			invoice.Status = entity.InvoiceStatusPaid
			invoice.GatewayPaymentID = normalizeOptionalString(gatewayPaymentID)
			invoice.UpdatedAt = now
			if err := tx.Invoices.Update(ctx, invoice); err != nil {
				return err
			}

			event, err := newOutboxEvent(entity.AggregateTypeInvoice, invoice.InvoiceNumber, entity.EventTypePaymentSucceeded, paymentEventPayload{
				InvoiceID:        invoice.ID,
				InvoiceNumber:    invoice.InvoiceNumber,
				GatewayOrderID:   gatewayOrderID,
				GatewayPaymentID: gatewayPaymentID,
				Amount:           invoice.TotalAmount.StringFixed(2),
				Currency:         invoice.Currency,
			}, now)
			if err != nil {
				return err
			}
			if err := tx.Outbox.Create(ctx, event); err != nil {
				return err
			}

			confirmation.Applied = true
			confirmation.Invoice = invoice
			confirmation.Transaction = txn
			return nil
		})
		if errors.Is(err, repository.ErrStaleEntity) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return confirmation, nil
	}

	return nil, ErrTooManyWriteConflicts
}

// HandlePaymentFailure is the failure counterpart of HandlePaymentSuccess,
// under the same idempotency and conflict rules.
func (o *PaymentOrchestrator) HandlePaymentFailure(ctx context.Context, gatewayOrderID, errorMessage string) (*PaymentConfirmation, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, ErrInvalidRequest
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		confirmation := &PaymentConfirmation{}
		err := o.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
			txn, err := tx.Payments.FindByGatewayOrderID(ctx, gatewayOrderID)
			if err != nil {
				return err
			}
			if txn == nil {
				return ErrTransactionNotFound
			}
			confirmation.Transaction = txn

			if txn.Terminal() {
				if txn.Status == entity.PaymentTransactionStatusFailed {
					invoice, err := tx.Invoices.FindByID(ctx, txn.InvoiceID)
					if err != nil {
						return err
					}
					confirmation.Invoice = invoice
					return nil
				}
				o.logConflict(gatewayOrderID, txn.Status, "failure")
				return ErrStateConflict
			}

			now := time.Now().UTC()
			return o.markAttemptFailed(ctx, tx, confirmation, txn, errorMessage, now)
		})
		if errors.Is(err, repository.ErrStaleEntity) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return confirmation, nil
	}

	return nil, ErrTooManyWriteConflicts
}

// GetInvoiceByNumber reads one invoice for the query surface.
func (o *PaymentOrchestrator) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, ErrInvalidRequest
	}

	invoice, err := o.ledger.View().Invoices.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (o *PaymentOrchestrator) recordOrderFailure(ctx context.Context, invoice *entity.Invoice, txn *entity.PaymentTransaction, cause error) error {
	return o.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
		confirmation := &PaymentConfirmation{Invoice: invoice}
		now := time.Now().UTC()
		return o.markAttemptFailed(ctx, tx, confirmation, txn, cause.Error(), now)
	})
}

func (o *PaymentOrchestrator) markAttemptFailed(ctx context.Context, tx *repository.Tx, confirmation *PaymentConfirmation, txn *entity.PaymentTransaction, errorMessage string, now time.Time) error {
	message := truncate(strings.TrimSpace(errorMessage), 1024)
	txn.Status = entity.PaymentTransactionStatusFailed
	txn.ErrorMessage = normalizeOptionalString(message)
	txn.UpdatedAt = now
	if err := tx.Payments.Update(ctx, txn); err != nil {
		return err
	}

	invoice := confirmation.Invoice
	if invoice == nil {
		loaded, err := tx.Invoices.FindByID(ctx, txn.InvoiceID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return ErrInvoiceNotFound
		}
		invoice = loaded
	}
	invoice.Status = entity.InvoiceStatusFailed
	invoice.UpdatedAt = now
	if err := tx.Invoices.Update(ctx, invoice); err != nil {
		return err
	}

	event, err := newOutboxEvent(entity.AggregateTypeInvoice, invoice.InvoiceNumber, entity.EventTypePaymentFailed, paymentEventPayload{
		InvoiceID:      invoice.ID,
		InvoiceNumber:  invoice.InvoiceNumber,
		GatewayOrderID: derefString(txn.GatewayOrderID),
		Amount:         invoice.TotalAmount.StringFixed(2),
		Currency:       invoice.Currency,
		ErrorMessage:   message,
	}, now)
	if err != nil {
		return err
	}
	if err := tx.Outbox.Create(ctx, event); err != nil {
		return err
	}

	confirmation.Applied = true
	confirmation.Invoice = invoice
	confirmation.Transaction = txn
	return nil
}

func (o *PaymentOrchestrator) logConflict(gatewayOrderID string, current entity.PaymentTransactionStatus, claimed string) {
	o.logger.WithFields(logrus.Fields{
		"gateway_order_id": gatewayOrderID,
		"current_status":   string(current),
		"claimed_outcome":  claimed,
	}).Warn("webhook_state_conflict")
}

func validateEnrollmentPayment(req *EnrollmentPayment) error {
	if strings.TrimSpace(req.EnrollmentID) == "" {
		return fmt.Errorf("%w: enrollment_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return fmt.Errorf("%w: plan_id is required", ErrInvalidRequest)
	}
	if len(strings.TrimSpace(req.Currency)) != 3 {
		return fmt.Errorf("%w: currency must be 3 letters", ErrInvalidRequest)
	}
	if !req.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: total amount must be > 0", ErrInvalidRequest)
	}
	expected := req.BaseAmount.Sub(req.DiscountAmount).Add(req.TaxAmount).Add(req.FeeAmount)
	if !expected.Equal(req.TotalAmount) {
		return fmt.Errorf("%w: total does not match base - discount + tax + fees", ErrInvalidRequest)
	}
	if req.CommissionRatePercent != nil {
		if req.CommissionRatePercent.IsNegative() || req.CommissionRatePercent.GreaterThan(oneHundred) {
			return fmt.Errorf("%w: commission rate must be between 0 and 100", ErrInvalidRequest)
		}
	}
	return nil
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
