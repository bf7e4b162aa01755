package service

import (
	"encoding/json"
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

type paymentEventPayload struct {
	InvoiceID        uint64 `json:"invoice_id"`
	InvoiceNumber    string `json:"invoice_number"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

type payoutEventPayload struct {
	PayoutID             uint64 `json:"payout_id"`
	PaymentTransactionID uint64 `json:"payment_transaction_id"`
	VendorID             string `json:"vendor_id"`
	GrossAmount          string `json:"gross_amount"`
	CommissionAmount     string `json:"commission_amount"`
	NetAmount            string `json:"net_amount"`
	Currency             string `json:"currency"`
	GatewayPayoutID      string `json:"gateway_payout_id,omitempty"`
	UTR                  string `json:"utr,omitempty"`
	ErrorCode            string `json:"error_code,omitempty"`
	ErrorMessage         string `json:"error_message,omitempty"`
}

func newOutboxEvent(aggregateType, aggregateID, eventType string, payload interface{}, at time.Time) (*entity.OutboxEvent, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &entity.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		PayloadJSON:   string(encoded),
		CreatedAt:     at,
	}, nil
}

func newPayoutOutboxEvent(payout *entity.PayoutTransaction, eventType string, at time.Time) (*entity.OutboxEvent, error) {
	return newOutboxEvent(entity.AggregateTypePayoutTransaction, payout.ReferenceID, eventType, payoutEventPayload{
		PayoutID:             payout.ID,
		PaymentTransactionID: payout.PaymentTransactionID,
		VendorID:             payout.VendorID,
		GrossAmount:          payout.GrossAmount.StringFixed(2),
		CommissionAmount:     payout.CommissionAmount.StringFixed(2),
		NetAmount:            payout.NetAmount.StringFixed(2),
		Currency:             payout.Currency,
		GatewayPayoutID:      derefString(payout.GatewayPayoutID),
		UTR:                  derefString(payout.UTR),
		ErrorCode:            derefString(payout.ErrorCode),
		ErrorMessage:         derefString(payout.ErrorMessage),
	}, at)
}
