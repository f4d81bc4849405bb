package tracker

import "github.com/shopspring/decimal"

// ShareCalc turns a relay's share of a servicekey's tokens (a ratio in
// [0, 1]) into a reward amount.
type ShareCalc interface {
	Reward(share decimal.Decimal) decimal.Decimal
}

// RshFrac is the fixed revenue-share fraction taken on top of the
// configured fee.
var RshFrac = decimal.NewFromFloat(0.05)

// DefaultShareCalc implements the linear reward formula:
// reward(share) = share * (value - fee_frac*value - rsh_frac*value).
type DefaultShareCalc struct {
	Value   decimal.Decimal
	FeeFrac decimal.Decimal
	RshFrac decimal.Decimal
}

// NewDefaultShareCalc builds a DefaultShareCalc with the fixed 5%
// revenue-share fraction.
func NewDefaultShareCalc(value, feeFrac decimal.Decimal) DefaultShareCalc {
	return DefaultShareCalc{Value: value, FeeFrac: feeFrac, RshFrac: RshFrac}
}

func (c DefaultShareCalc) Reward(share decimal.Decimal) decimal.Decimal {
	fee := c.FeeFrac.Mul(c.Value)
	rsh := c.RshFrac.Mul(c.Value)
	return share.Mul(c.Value.Sub(fee).Sub(rsh))
}
