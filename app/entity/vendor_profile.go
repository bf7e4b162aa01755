package entity

import "github.com/shopspring/decimal"

// VendorProfile is supplied by the vendor-profile service and is read-only
// here. It is authoritative only at the moment of payout initiation.
type VendorProfile struct {
	VendorID              string
	CommissionRatePercent decimal.Decimal
	FundAccountID         string
	PayoutLimitAmount     decimal.Decimal
	Active                bool
}
