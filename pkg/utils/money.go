package utils

import "math"

// Prices are NUMERIC(12,2) in the database; comparisons happen on whole cents
// so that float rounding never decides whether an amount was paid in full.

func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// RoundMoney rounds to two decimal places.
func RoundMoney(amount float64) float64 {
	return FromCents(ToCents(amount))
}

// AmountCovers reports whether paid is at least expected.
func AmountCovers(paid, expected float64) bool {
	return ToCents(paid) >= ToCents(expected)
}
