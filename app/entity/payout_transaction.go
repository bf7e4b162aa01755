package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutTransactionStatus string

const (
	PayoutTransactionStatusInit       PayoutTransactionStatus = "INIT"
	PayoutTransactionStatusPending    PayoutTransactionStatus = "PENDING"
	PayoutTransactionStatusProcessing PayoutTransactionStatus = "PROCESSING"
	PayoutTransactionStatusSuccess    PayoutTransactionStatus = "SUCCESS"
	PayoutTransactionStatusFailed     PayoutTransactionStatus = "FAILED"
	PayoutTransactionStatusCancelled  PayoutTransactionStatus = "CANCELLED"
)

// PayoutTransaction is one vendor disbursement tied to exactly one captured
// PaymentTransaction. net = gross - commission. The vendor's commission rate
// and fund account are snapshotted at initiation time so mid-flight profile
// changes cannot affect an already-initiated payout.
type PayoutTransaction struct {
	ID                   uint64
	PaymentTransactionID uint64
	VendorID             string

	GrossAmount           decimal.Decimal
	CommissionAmount      decimal.Decimal
	NetAmount             decimal.Decimal
	CommissionRatePercent decimal.Decimal
	Currency              string

	FundAccountID string
	ReferenceID   string

	Status PayoutTransactionStatus

	GatewayPayoutID *string
	UTR             *string
	ErrorCode       *string
	ErrorMessage    *string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *PayoutTransaction) Terminal() bool {
	switch t.Status {
	case PayoutTransactionStatusSuccess, PayoutTransactionStatusFailed, PayoutTransactionStatusCancelled:
		return true
	default:
		return false
	}
}
