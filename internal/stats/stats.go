// Package stats implements the two decimal-precision statistics the
// detector threshold-adaptation formula needs: the arithmetic mean and
// the population standard deviation, both rounded to two fractional
// digits to match the core's money-precision threshold convention.
package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

var twoPlaces = int32(2)

// Mean returns the arithmetic mean of values, rounded to two fractional
// digits. Returns zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}

	return sum.DivRound(decimal.NewFromInt(int64(len(values))), twoPlaces+2).Round(twoPlaces)
}

// StandardDeviation returns the population standard deviation (1 sigma)
// of values around the given mean, rounded to two fractional digits.
// Returns zero for an empty slice.
func StandardDeviation(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	variance := Variance(values, mean)
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())).Round(twoPlaces)
}

// Variance returns the population variance of values around the given
// mean. Returns zero for an empty slice.
func Variance(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}

	return sumSquares.DivRound(decimal.NewFromInt(int64(len(values))), twoPlaces+4)
}
