package models

import "github.com/shopspring/decimal"

var paisePerRupee = decimal.NewFromInt(100)

// RupeesToPaise converts a major-unit amount to paise, rounding half away from zero.
func RupeesToPaise(rupees float64) int64 {
	return decimal.NewFromFloat(rupees).Mul(paisePerRupee).Round(0).IntPart()
}

// PaiseToRupees converts paise back to a major-unit amount for the wire.
func PaiseToRupees(paise int64) float64 {
	return decimal.New(paise, -2).InexactFloat64()
}
