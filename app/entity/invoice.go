package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is created once per enrollment payment attempt. Amounts are
// fixed-point decimals; TotalAmount must equal base - discount + tax + fees.
type Invoice struct {
	ID uint64

	InvoiceNumber string
	EnrollmentID  string
	UserID        string
	PlanID        string

	BaseAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	FeeAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string

	Status InvoiceStatus

	PaymentTransactionID *uint64
	GatewayOrderID       *string
	GatewayPaymentID     *string

	VendorID              *string
	CommissionRatePercent *decimal.Decimal

	BillingName    string
	BillingEmail   string
	BillingPhone   string
	BillingAddress string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether no further payment-status transition is allowed.
func (i *Invoice) Terminal() bool {
	switch i.Status {
	case InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusRefunded, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// BreakdownConsistent checks total = base - discount + tax + fees.
func (i *Invoice) BreakdownConsistent() bool {
	expected := i.BaseAmount.Sub(i.DiscountAmount).Add(i.TaxAmount).Add(i.FeeAmount)
	return expected.Equal(i.TotalAmount)
}
