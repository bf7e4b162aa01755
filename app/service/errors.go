package service

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrPayoutNotFound        = errors.New("payout transaction not found")
	ErrStateConflict         = errors.New("webhook contradicts terminal state")
	ErrPaymentNotCaptured    = errors.New("payment transaction is not captured")
	ErrPayoutNotDispatched   = errors.New("payout has not been dispatched to the gateway yet")
	ErrPayoutLimitExceeded   = errors.New("payout exceeds vendor limit")
	ErrVendorInactive        = errors.New("vendor is not active for payouts")
	ErrTooManyWriteConflicts = errors.New("too many concurrent write conflicts")
)
