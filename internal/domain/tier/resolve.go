package tier

import "github.com/shopspring/decimal"

// sharePrecision bounds the fractional digits of a reported share.
const sharePrecision = 18

// SharePercent returns stake as a percentage of poolTotal, clamped to
// [0, 100]. A zero or negative pool yields 0.
func SharePercent(stake, poolTotal decimal.Decimal) decimal.Decimal {
	if poolTotal.Sign() <= 0 || stake.Sign() <= 0 {
		return decimal.Zero
	}
	if stake.GreaterThanOrEqual(poolTotal) {
		return hundred
	}
	return stake.Mul(hundred).DivRound(poolTotal, sharePrecision)
}

// ShareExceeds reports whether stake's share of poolTotal is strictly above
// thresholdPercent. The comparison is exact (cross multiplied), so it never
// disagrees with itself across rounding modes. Resolution and both solvers
// use it as the single boundary test.
func ShareExceeds(stake, poolTotal, thresholdPercent decimal.Decimal) bool {
	if poolTotal.Sign() <= 0 || stake.Sign() <= 0 {
		return false
	}
	s := decimal.Min(stake, poolTotal)
	return s.Mul(hundred).Cmp(thresholdPercent.Mul(poolTotal)) > 0
}

// Resolve returns the lowest tier of sorted whose upper threshold is at or
// above the stake's share. Zero stake or pool resolves to the lowest tier and
// shares above every threshold resolve to the highest. ok is false only when
// sorted is empty.
func Resolve(stake, poolTotal decimal.Decimal, sorted []Definition) (d Definition, ok bool) {
	if len(sorted) == 0 {
		return Definition{}, false
	}
	if poolTotal.Sign() <= 0 || stake.Sign() <= 0 {
		return sorted[0], true
	}
	for _, def := range sorted {
		if !ShareExceeds(stake, poolTotal, def.UpperThresholdPercent) {
			return def, true
		}
	}
	return sorted[len(sorted)-1], true
}

// ClaimStatus compares a tier recorded on the ledger with the resolved one.
type ClaimStatus string

// Claim statuses.
const (
	// ClaimNone means the account carries no recorded tier.
	ClaimNone ClaimStatus = "none"
	// ClaimCurrent means the recorded tier matches the resolved tier.
	ClaimCurrent ClaimStatus = "current"
	// ClaimUpgradeAvailable means the stake now qualifies for a higher tier
	// than the one recorded.
	ClaimUpgradeAvailable ClaimStatus = "upgrade_available"
	// ClaimAhead means the recorded tier is above what the stake supports,
	// typically after pool dilution.
	ClaimAhead ClaimStatus = "ahead"
	// ClaimUnknown means the recorded tier is not in the table.
	ClaimUnknown ClaimStatus = "unknown"
)

// Reconcile classifies the claimed tier against the resolved one.
func Reconcile(claimed ID, resolved Definition, sorted []Definition) ClaimStatus {
	if claimed == "" {
		return ClaimNone
	}
	ci := IndexOf(sorted, claimed)
	ri := IndexOf(sorted, resolved.ID)
	switch {
	case ci < 0 || ri < 0:
		return ClaimUnknown
	case ci == ri:
		return ClaimCurrent
	case ci < ri:
		return ClaimUpgradeAvailable
	default:
		return ClaimAhead
	}
}
