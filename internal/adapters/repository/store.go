// Package repository keeps the in-memory ledger snapshot the service
// evaluates: pool state, the tier table and every stake account.
package repository

import (
	"context"
	"time"

	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
)

// Entry is one row of the staker ranking.
type Entry struct {
	Rank   int
	Owner  string
	Staked quantity.Quantity
	Tier   tier.ID
}

// View is a consistent read of everything a tier calculation needs for one
// owner. All three parts come from the same instant.
type View struct {
	Account model.StakeAccount
	Pool    model.PoolState
	Tiers   []tier.Definition
}

// Store provides read/write access to the ledger snapshot.
type Store interface {
	// ApplyStake adds a gross deposit: the pool grows by the gross amount and
	// the account by the amount net of the deposit fee.
	ApplyStake(ctx context.Context, owner string, gross quantity.Quantity, ts time.Time) (model.StakeAccount, error)
	// ApplyUnstake removes amount from the account and the pool. It returns
	// ErrInsufficientStake instead of overdrawing either.
	ApplyUnstake(ctx context.Context, owner string, amount quantity.Quantity, cooldown time.Duration, ts time.Time) (model.StakeAccount, error)
	// RecordClaim stamps the account's last claim time.
	RecordClaim(ctx context.Context, owner string, ts time.Time) (model.StakeAccount, error)
	// SetTier records the tier the ledger stores for owner.
	SetTier(ctx context.Context, owner string, id tier.ID) (model.StakeAccount, error)

	// SetPool overrides the pool totals, e.g. from an external ledger read.
	SetPool(ctx context.Context, pool model.PoolState) error
	Pool(ctx context.Context) model.PoolState
	// SetTiers replaces the tier table.
	SetTiers(ctx context.Context, defs []tier.Definition) error
	Tiers(ctx context.Context) []tier.Definition

	// View returns ErrNotFound for an owner the ledger has never seen.
	View(ctx context.Context, owner string) (View, error)

	// Rank returns the owner's position by staked amount. Equal stakes share
	// a rank. Owners without a positive stake are not ranked.
	Rank(ctx context.Context, owner string) (Entry, error)
	// TopN returns the n largest stakes, largest first.
	TopN(ctx context.Context, n int) ([]Entry, error)
	// Count returns the number of owners with a positive stake.
	Count(ctx context.Context) int
}
