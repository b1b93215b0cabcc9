package tier

import "github.com/shopspring/decimal"

const progressPrecision = 18

// Progress locates share between current's threshold and next's threshold
// as a value in [0, 100]. Without a next tier the participant is at the
// ceiling and progress is 100; the same holds when both thresholds are equal.
//
// prev is accepted so callers can pass a full neighbor set; it does not
// affect the result.
func Progress(share decimal.Decimal, current Definition, _, next *Definition) decimal.Decimal {
	if next == nil {
		return hundred
	}
	span := next.UpperThresholdPercent.Sub(current.UpperThresholdPercent)
	if span.Sign() <= 0 {
		return hundred
	}
	p := share.Sub(current.UpperThresholdPercent).Mul(hundred).DivRound(span, progressPrecision)
	return clampPercent(p)
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
