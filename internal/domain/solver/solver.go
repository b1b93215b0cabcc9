// Package solver computes dilution-aware deposit and withdrawal amounts
// around tier boundaries.
//
// Every deposit of X grows the pool by X while the depositor is credited
// X*(1-fee); every withdrawal of X shrinks both sides by X. Results are
// rounded to the pool's ledger precision in the direction that never
// misleads the caller (up for requirements, down for safe withdrawals) and
// then checked exactly against the boundary predicate of package tier.
package solver

import (
	"errors"

	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

// Errors reported by the solvers.
var (
	ErrUnreachable    = errors.New("tier unreachable by finite deposit")
	ErrInvalidFeeRate = errors.New("fee rate must be within [0, 1)")
)

const (
	// divPrecision is the working precision before rounding to the ledger's.
	divPrecision = 36
	// maxAdjustSteps bounds the one-unit corrections after rounding.
	maxAdjustSteps = 4
)

var one = decimal.NewFromInt(1)

// Requirement is the deposit needed to reach the next tier.
type Requirement struct {
	// Additional is the gross deposit, fee included.
	Additional decimal.Decimal
	// Total is the stake plus the gross deposit.
	Total decimal.Decimal
	// Fee is the part of Additional retained by the protocol.
	Fee decimal.Decimal
}

// ValidateFeeRate checks that feeRate is a fraction in [0, 1).
func ValidateFeeRate(feeRate decimal.Decimal) error {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return ErrInvalidFeeRate
	}
	return nil
}

// AmountForNextTier solves (S + X*(1-f)) / (P + X) = t for the gross deposit
// X, where t is next's threshold as a fraction. When 1-f <= t no finite
// deposit gets there and ErrUnreachable is returned.
//
// bufferPercent scales the solved deposit up by that percentage before the
// fee is taken; zero or negative means no buffer.
func AmountForNextTier(stake, poolTotal decimal.Decimal, next tier.Definition, feeRate, bufferPercent decimal.Decimal, decimals uint8) (Requirement, error) {
	if err := ValidateFeeRate(feeRate); err != nil {
		return Requirement{}, err
	}
	dp := int32(decimals)
	ulp := decimal.New(1, -dp)
	credit := one.Sub(feeRate)
	target := next.UpperThresholdPercent.Shift(-2)

	den := credit.Sub(target)
	if den.Sign() <= 0 {
		return Requirement{}, ErrUnreachable
	}

	x := decimal.Zero
	if num := target.Mul(poolTotal).Sub(stake); num.Sign() > 0 {
		x = num.DivRound(den, divPrecision).RoundCeil(dp)
	}
	for i := 0; i < maxAdjustSteps && !reaches(stake, poolTotal, x, credit, next.UpperThresholdPercent); i++ {
		x = x.Add(ulp)
	}

	if bufferPercent.IsPositive() {
		x = x.Mul(one.Add(bufferPercent.Shift(-2))).RoundCeil(dp)
	}

	return Requirement{
		Additional: x,
		Total:      stake.Add(x),
		Fee:        x.Mul(feeRate).RoundCeil(dp),
	}, nil
}

// reaches reports whether depositing x lifts the share to at least
// thresholdPercent.
func reaches(stake, poolTotal, x, credit, thresholdPercent decimal.Decimal) bool {
	newStake := stake.Add(x.Mul(credit))
	newPool := poolTotal.Add(x)
	return newStake.Mul(decimal.NewFromInt(100)).Cmp(thresholdPercent.Mul(newPool)) >= 0
}

// SafeUnstakeAmount returns the largest withdrawal that keeps the share
// strictly above prev's threshold, which is the current tier's lower bound.
// Landing exactly on that threshold would resolve to prev, so the solved
// amount is floored and then stepped down until the exact check passes.
//
// Without a previous tier every withdrawal is tier-safe and the result is
// the whole stake less one ledger unit. The result is always in [0, stake].
func SafeUnstakeAmount(stake, poolTotal decimal.Decimal, prev *tier.Definition, decimals uint8) decimal.Decimal {
	if stake.Sign() <= 0 {
		return decimal.Zero
	}
	dp := int32(decimals)
	ulp := decimal.New(1, -dp)

	if prev == nil {
		return clamp(stake.Sub(ulp), stake)
	}

	bound := prev.UpperThresholdPercent.Shift(-2)
	den := one.Sub(bound)
	num := stake.Sub(bound.Mul(poolTotal))
	if den.Sign() <= 0 || num.Sign() <= 0 {
		return decimal.Zero
	}

	x := clamp(num.DivRound(den, divPrecision).RoundFloor(dp), stake)
	for i := 0; x.IsPositive() && !keeps(stake, poolTotal, x, prev.UpperThresholdPercent); i++ {
		if i >= maxAdjustSteps {
			return decimal.Zero
		}
		x = x.Sub(ulp)
	}
	return clamp(x, stake)
}

// keeps reports whether withdrawing x leaves the share above thresholdPercent.
func keeps(stake, poolTotal, x, thresholdPercent decimal.Decimal) bool {
	return tier.ShareExceeds(stake.Sub(x), poolTotal.Sub(x), thresholdPercent)
}

func clamp(x, upper decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		return decimal.Zero
	}
	if x.GreaterThan(upper) {
		return upper
	}
	return x
}
