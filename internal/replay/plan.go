package replay

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/shopspring/decimal"
)

const (
	maxWholeStake   = 5000
	minUnstakeShare = 10 // percent of the net balance
	maxUnstakeShare = 50
)

// Plan is a generated ledger history and the balances it must produce.
type Plan struct {
	RunID   string
	Unit    quantity.Quantity // symbol and precision of every amount
	FeeRate decimal.Decimal

	Stakes     []types.EventRequest
	Duplicates []types.EventRequest // resubmissions of stakes with the same id
	Unstakes   []types.EventRequest

	// Histories holds each owner's events in submission order, duplicates
	// included.
	Histories [][]types.EventRequest

	Owners   []string
	Expected map[string]decimal.Decimal // net balance per owner
	Gross    decimal.Decimal            // expected pool growth
}

// NewPlan generates a history for cfg.Owners owners. Every owner stakes at
// least once and then may unstake part of its net balance, so an owner's
// history is only valid when applied in order.
func NewPlan(cfg Config, unit quantity.Quantity, feeRate decimal.Decimal) *Plan { //nolint:gocritic // hugeParam: config is a value
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible amounts, not secrets
	keep := decimal.NewFromInt(1).Sub(feeRate)
	places := int32(unit.Decimals)

	p := &Plan{
		RunID:    uuid.NewString()[:8],
		Unit:     unit.WithAmount(decimal.Zero),
		FeeRate:  feeRate,
		Owners:   make([]string, 0, cfg.Owners),
		Expected: make(map[string]decimal.Decimal, cfg.Owners),
		Gross:    decimal.Zero,
	}

	for i := range cfg.Owners {
		owner := fmt.Sprintf("replay%05d.%s", i, p.RunID)
		p.Owners = append(p.Owners, owner)

		net := decimal.Zero
		var history []types.EventRequest
		for range 1 + rng.IntN(cfg.MaxStakesPerOwner) {
			gross := decimal.New(int64(1+rng.IntN(maxWholeStake)), 0).
				Add(decimal.New(int64(rng.IntN(100)), -2))
			ev := p.event(owner, model.KindStake, gross)
			p.Stakes = append(p.Stakes, ev)
			history = append(history, ev)
			if rng.Float64() < cfg.DuplicateRatio {
				p.Duplicates = append(p.Duplicates, ev)
				history = append(history, ev)
			}
			net = net.Add(gross.Mul(keep))
			p.Gross = p.Gross.Add(gross)
		}

		if rng.Float64() < cfg.UnstakeRatio {
			share := decimal.New(int64(minUnstakeShare+rng.IntN(maxUnstakeShare-minUnstakeShare+1)), -2)
			amount := net.Mul(share).RoundDown(places)
			if amount.IsPositive() {
				ev := p.event(owner, model.KindUnstake, amount)
				p.Unstakes = append(p.Unstakes, ev)
				history = append(history, ev)
				net = net.Sub(amount)
				p.Gross = p.Gross.Sub(amount)
			}
		}
		p.Expected[owner] = net
		p.Histories = append(p.Histories, history)
	}
	return p
}

func (p *Plan) event(owner string, kind model.EventKind, amount decimal.Decimal) types.EventRequest {
	return types.EventRequest{
		EventID:  uuid.NewString(),
		Owner:    owner,
		Kind:     string(kind),
		Quantity: p.Unit.Format(amount),
	}
}

// Len returns the number of distinct events in the plan.
func (p *Plan) Len() int { return len(p.Stakes) + len(p.Unstakes) }
