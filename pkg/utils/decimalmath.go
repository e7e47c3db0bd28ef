package utils

// decimalmath.go - decimal-precision market math
//
// Order-lifecycle decisions (depth walk, VWAP, price-band correction)
// must not round through float64: the conservation invariant
// (baseFilled + baseRemaining = baseAmount) and the price-band
// containment property are exact-decimal properties. These mirror
// math.go's float64 helpers one-for-one, retargeted to
// shopspring/decimal.

import (
	"github.com/shopspring/decimal"
)

// PriceLevel is one (price, amount) pair of an order book side.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// DepthWalk walks levels (best price first) accumulating amount until
// targetAmount is reached or the book is exhausted. Returns the
// volume-weighted average price, the amount actually filled (may be
// less than targetAmount if the book is too thin), and the total cost.
func DepthWalk(levels []PriceLevel, targetAmount decimal.Decimal) (avgPrice, filledAmount, totalCost decimal.Decimal) {
	if len(levels) == 0 || targetAmount.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	remaining := targetAmount
	for _, level := range levels {
		if level.Price.Sign() <= 0 || level.Amount.Sign() <= 0 {
			continue
		}
		take := decimal.Min(remaining, level.Amount)
		totalCost = totalCost.Add(level.Price.Mul(take))
		filledAmount = filledAmount.Add(take)
		remaining = remaining.Sub(take)
		if remaining.Sign() <= 0 {
			break
		}
	}

	if filledAmount.Sign() == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	avgPrice = totalCost.Div(filledAmount)
	return avgPrice, filledAmount, totalCost
}

// WeightedAverage computes the volume-weighted average of values using
// weights; returns zero if inputs are empty, mismatched, or all-zero
// weight. Negative weights are skipped.
func WeightedAverage(values, weights []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 || len(values) != len(weights) {
		return decimal.Zero
	}

	sumWeighted := decimal.Zero
	sumWeights := decimal.Zero
	for i := range values {
		if weights[i].Sign() < 0 {
			continue
		}
		sumWeighted = sumWeighted.Add(values[i].Mul(weights[i]))
		sumWeights = sumWeights.Add(weights[i])
	}
	if sumWeights.Sign() == 0 {
		return decimal.Zero
	}
	return sumWeighted.Div(sumWeights)
}

// RoundDownToTick floors value to the nearest multiple of tick. tick
// <= 0 returns value unchanged.
func RoundDownToTick(value, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return value
	}
	steps := value.Div(tick).Floor()
	return steps.Mul(tick)
}

// ClampDecimal restricts value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// SpreadPercent computes ((high-low)/low)*100; 0 if low <= 0.
func SpreadPercent(high, low decimal.Decimal) decimal.Decimal {
	if low.Sign() <= 0 {
		return decimal.Zero
	}
	return high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
}
