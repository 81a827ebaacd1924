package payment

import "github.com/shopspring/decimal"

// DefaultTolerance absorbs rounding introduced by currency formatting layers.
// It must stay within one minor currency unit.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Line is the pricing view of a purchased line.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// Subtotal returns Σ(price × quantity).
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Reconcile reports whether Σ(price × quantity) is within tolerance of
// claimedTotal. Shipping is not included; callers add any flat surcharge to the
// computed side themselves.
func Reconcile(lines []Line, claimedTotal, tolerance decimal.Decimal) bool {
	return Subtotal(lines).Sub(claimedTotal).Abs().LessThanOrEqual(tolerance)
}

// ToMinorUnits converts a currency amount to minor units (×100), rounding
// half away from zero to the nearest unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts minor units back to a currency amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
