package entity

import "time"

const (
	AggregateTypeInvoice            = "invoice"
	AggregateTypePaymentTransaction = "payment_transaction"
	AggregateTypePayoutTransaction  = "payout_transaction"
)

const (
	EventTypePaymentSucceeded      = "payment.succeeded"
	EventTypePaymentFailed         = "payment.failed"
	EventTypeVendorPayoutInitiated = "vendor.payout.initiated"
	EventTypeVendorPayoutSucceeded = "vendor.payout.succeeded"
	EventTypeVendorPayoutFailed    = "vendor.payout.failed"
)

// OutboxEvent is appended in the same transaction as the domain-state change
// it describes. The publisher flips Processed after confirmed bus delivery;
// rows are never deleted.
type OutboxEvent struct {
	ID uint64

	AggregateType string
	AggregateID   string
	EventType     string
	PayloadJSON   string

	Processed   bool
	ProcessedAt *time.Time

	CreatedAt time.Time
}
