package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
)

type paymentSettler interface {
	HandlePaymentSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, method string) (*PaymentConfirmation, error)
	HandlePaymentFailure(ctx context.Context, gatewayOrderID, errorMessage string) (*PaymentConfirmation, error)
}

type payoutSettler interface {
	InitiatePayout(ctx context.Context, in *InitiatePayoutInput) (*entity.PayoutTransaction, error)
	HandlePayoutProcessing(ctx context.Context, gatewayPayoutID string) (*PayoutConfirmation, error)
	HandlePayoutSuccess(ctx context.Context, gatewayPayoutID, utr string, processedAt time.Time) (*PayoutConfirmation, error)
	HandlePayoutFailed(ctx context.Context, gatewayPayoutID, code, message string, at time.Time) (*PayoutConfirmation, error)
}

// WebhookReconciler verifies and applies inbound gateway notifications. It is
// the single entry point for the webhook endpoint; routing to the payment or
// payout side happens here, off the parsed event kind.
type WebhookReconciler struct {
	gateway  gateway.Client
	payments paymentSettler
	payouts  payoutSettler
	logger   logrus.FieldLogger
}

func NewWebhookReconciler(gatewayClient gateway.Client, payments paymentSettler, payouts payoutSettler, logger logrus.FieldLogger) *WebhookReconciler {
	return &WebhookReconciler{
		gateway:  gatewayClient,
		payments: payments,
		payouts:  payouts,
		logger:   logger,
	}
}

// HandleWebhook processes one raw delivery. A nil return acknowledges the
// delivery; a non-nil return tells the caller to reply non-2xx so the
// gateway redelivers. Terminal-state contradictions are logged by the
// handlers and acknowledged here, since redelivery can never resolve them.
func (r *WebhookReconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	event, err := r.gateway.ParseWebhook(rawBody, signature)
	if err != nil {
		return err
	}

	switch event.Kind {
	case gateway.WebhookPaymentAuthorized:
		return r.applyPaymentSuccess(ctx, event.Payment)

	case gateway.WebhookPaymentFailed:
		p := event.Payment
		message := p.ErrorDescription
		if message == "" {
			message = p.ErrorCode
		}
		_, err := r.payments.HandlePaymentFailure(ctx, p.GatewayOrderID, message)
		return r.ackConflicts(err)

	case gateway.WebhookPayoutProcessing:
		_, err := r.payouts.HandlePayoutProcessing(ctx, event.Payout.GatewayPayoutID)
		return r.ackConflicts(err)

	case gateway.WebhookPayoutProcessed:
		_, err := r.payouts.HandlePayoutSuccess(ctx, event.Payout.GatewayPayoutID, event.Payout.UTR, time.Time{})
		return r.ackConflicts(err)

	case gateway.WebhookPayoutFailed:
		_, err := r.payouts.HandlePayoutFailed(ctx, event.Payout.GatewayPayoutID, "failed", event.Payout.FailureReason, time.Time{})
		return r.ackConflicts(err)

	case gateway.WebhookPayoutReversed:
		// A reversal after settlement still lands the payout in FAILED so
		// the money position is correct; the code distinguishes it.
		_, err := r.payouts.HandlePayoutFailed(ctx, event.Payout.GatewayPayoutID, "reversed", event.Payout.FailureReason, time.Time{})
		return r.ackConflicts(err)

	default:
		r.logger.WithField("event_type", event.RawType).Info("Ignoring unhandled webhook event")
		return nil
	}
}

// applyPaymentSuccess settles the payment and, on the first application,
// kicks off the vendor payout when the invoice names a vendor. Duplicate
// deliveries report Applied=false and never re-initiate.
func (r *WebhookReconciler) applyPaymentSuccess(ctx context.Context, p *gateway.PaymentWebhook) error {
	confirmation, err := r.payments.HandlePaymentSuccess(ctx, p.GatewayOrderID, p.GatewayPaymentID, p.Method)
	if err != nil {
		return r.ackConflicts(err)
	}
	if !confirmation.Applied {
		return nil
	}

	invoice := confirmation.Invoice
	if invoice == nil || invoice.VendorID == nil || invoice.PaymentTransactionID == nil {
		return nil
	}

	_, err = r.payouts.InitiatePayout(ctx, &InitiatePayoutInput{
		PaymentTransactionID: *invoice.PaymentTransactionID,
		VendorID:             *invoice.VendorID,
		GrossAmount:          invoice.TotalAmount,
		Currency:             invoice.Currency,
		RateOverride:         invoice.CommissionRatePercent,
	})
	if err != nil {
		// The payment is settled; a payout failure here must not make the
		// gateway replay the payment webhook. The sweep and operator tooling
		// pick this up from the CAPTURED-without-payout state.
		r.logger.WithError(err).WithFields(logrus.Fields{
			"invoice_number": invoice.InvoiceNumber,
			"vendor_id":      *invoice.VendorID,
		}).Error("Vendor payout initiation failed after payment settlement")
	}
	return nil
}

func (r *WebhookReconciler) ackConflicts(err error) error {
	if errors.Is(err, ErrStateConflict) {
		return nil
	}
	return err
}
