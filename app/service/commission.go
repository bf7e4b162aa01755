package service

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// ComputeCommission splits a gross amount by the vendor's percentage rate.
// commission = gross * rate / 100, rounded half-up to 2 decimal places;
// net = gross - commission. decimal.Round rounds half away from zero, which
// is half-up for the non-negative amounts handled here.
func ComputeCommission(gross decimal.Decimal, ratePercent decimal.Decimal) (commission, net decimal.Decimal) {
	commission = gross.Mul(ratePercent).Div(oneHundred).Round(2)
	net = gross.Sub(commission)
	return commission, net
}

// MinorUnits converts a 2-decimal major amount to the currency's minor unit
// (rupees to paise). Gateway APIs take minor units only.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
