package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentTransactionStatus string

const (
	PaymentTransactionStatusPending  PaymentTransactionStatus = "PENDING"
	PaymentTransactionStatusCaptured PaymentTransactionStatus = "CAPTURED"
	PaymentTransactionStatusFailed   PaymentTransactionStatus = "FAILED"
)

// PaymentTransaction is one row per gateway order attempt. Status is
// monotonic: once CAPTURED or FAILED it never changes again.
type PaymentTransaction struct {
	ID        uint64
	InvoiceID uint64

	Amount   decimal.Decimal
	Currency string

	Status PaymentTransactionStatus

	GatewayOrderID   *string
	GatewayPaymentID *string
	PaymentMethod    *string
	ErrorMessage     *string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *PaymentTransaction) Terminal() bool {
	return t.Status == PaymentTransactionStatusCaptured || t.Status == PaymentTransactionStatusFailed
}
