// Package engine composes tier resolution, progress and the two solvers into
// one consistent tier progress snapshot.
//
// Calculate is pure: it keeps no state, performs no I/O and returns
// identical results for identical inputs, so it is safe to call from any
// number of goroutines.
package engine

import (
	"errors"
	"fmt"

	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/solver"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

// Conditions under which no result is produced. Callers should treat them
// as "data not ready" rather than as zero progress.
var (
	ErrInsufficientData = errors.New("insufficient data for tier calculation")
	ErrNoTiers          = errors.New("no tiers supplied")
	ErrTierNotFound     = errors.New("resolved tier not uniquely identified in tier list")
	ErrInvalidFeeRate   = solver.ErrInvalidFeeRate
)

// Input is one calculation request built from ledger snapshots.
type Input struct {
	Stake quantity.Quantity
	Pool  model.PoolState
	Tiers []tier.Definition

	// FeeRate is the fraction of each deposit kept by the protocol.
	FeeRate decimal.Decimal
	// BufferPercent pads the next-tier deposit; zero disables it.
	BufferPercent decimal.Decimal
	// ClaimedTier is the tier recorded on the ledger, if any.
	ClaimedTier tier.ID
}

// ForAccount builds an Input for a ledger stake account.
func ForAccount(account model.StakeAccount, pool model.PoolState, tiers []tier.Definition, feeRate, bufferPercent decimal.Decimal) Input { //nolint:gocritic // hugeParam: snapshots are values
	return Input{
		Stake:         account.StakedAmount,
		Pool:          pool,
		Tiers:         tiers,
		FeeRate:       feeRate,
		BufferPercent: bufferPercent,
		ClaimedTier:   account.Tier,
	}
}

// Result is an immutable tier progress snapshot. Every field comes from the
// same resolution pass.
type Result struct {
	CurrentTier tier.Definition
	NextTier    *tier.Definition
	PrevTier    *tier.Definition

	SharePercent    decimal.Decimal
	ProgressPercent decimal.Decimal

	StakedAmount decimal.Decimal
	TotalStaked  decimal.Decimal
	Symbol       string
	Decimals     uint8

	SafeUnstakeAmount decimal.Decimal

	// NextTierReachable is false at the top tier and when the fee makes the
	// next threshold unreachable; the amount fields below are nil then.
	NextTierReachable           bool
	AdditionalAmountForNextTier *decimal.Decimal
	TotalAmountForNextTier      *decimal.Decimal
	FeeAmount                   *decimal.Decimal

	Claim tier.ClaimStatus
}

// Calculate resolves the stake's tier and derives progress, the next-tier
// requirement and the safe unstake amount in a single pass.
func Calculate(in Input) (Result, error) { //nolint:gocritic // hugeParam: inputs are values
	if err := solver.ValidateFeeRate(in.FeeRate); err != nil {
		return Result{}, err
	}
	if len(in.Tiers) == 0 {
		return Result{}, ErrNoTiers
	}
	stake := in.Stake.Amount
	total := in.Pool.TotalStaked.Amount
	if total.Sign() <= 0 || stake.IsNegative() {
		return Result{}, ErrInsufficientData
	}

	sorted := tier.Sorted(in.Tiers)
	current, ok := tier.Resolve(stake, total, sorted)
	// Neighbors and Reconcile look the tier up by id.
	if !ok || occurrences(in.Tiers, current.ID) != 1 {
		return Result{}, ErrTierNotFound
	}
	prev, next := tier.Neighbors(sorted, current.ID)

	share := tier.SharePercent(stake, total)
	decimals := in.Pool.TotalStaked.Decimals

	res := Result{
		CurrentTier:       current,
		NextTier:          next,
		PrevTier:          prev,
		SharePercent:      share,
		ProgressPercent:   tier.Progress(share, current, prev, next),
		StakedAmount:      stake,
		TotalStaked:       total,
		Symbol:            in.Pool.TotalStaked.Symbol,
		Decimals:          decimals,
		SafeUnstakeAmount: solver.SafeUnstakeAmount(stake, total, prev, decimals),
		Claim:             tier.Reconcile(in.ClaimedTier, current, sorted),
	}

	if next == nil {
		return res, nil
	}
	req, err := solver.AmountForNextTier(stake, total, *next, in.FeeRate, in.BufferPercent, decimals)
	switch {
	case errors.Is(err, solver.ErrUnreachable):
		return res, nil
	case err != nil:
		return Result{}, fmt.Errorf("next tier requirement: %w", err)
	}
	res.NextTierReachable = true
	res.AdditionalAmountForNextTier = &req.Additional
	res.TotalAmountForNextTier = &req.Total
	res.FeeAmount = &req.Fee
	return res, nil
}

func occurrences(defs []tier.Definition, id tier.ID) int {
	n := 0
	for i := range defs {
		if defs[i].ID == id {
			n++
		}
	}
	return n
}
