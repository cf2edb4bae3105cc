package discount

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Policy controls discount eligibility and size. Deployments differ on both
// knobs, so neither is hard-coded: Percent is the discount applied to the
// order total, MinTotal gates eligibility on a minimum order total.
type Policy struct {
	Percent  int64
	MinTotal decimal.Decimal
}

// DefaultPolicy is a flat 10% discount with no minimum-total gate.
func DefaultPolicy() Policy {
	return Policy{Percent: 10}
}

// Amount returns the discount for the given order total: floor of
// total × Percent/100 when the total meets the minimum, zero otherwise.
func (p Policy) Amount(total decimal.Decimal) decimal.Decimal {
	if p.Percent <= 0 || total.LessThan(p.MinTotal) {
		return decimal.Zero
	}
	return total.Mul(decimal.NewFromInt(p.Percent)).Div(hundred).Floor()
}
