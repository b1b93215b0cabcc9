package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/okian/stakingtier/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

type mismatches struct {
	mu    sync.Mutex
	items []string
}

func (m *mismatches) add(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, fmt.Sprintf(format, args...))
}

// verify compares every owner's balance with the plan, checks the bounds of
// each progress snapshot, the ranking order and the pool growth.
func verify(ctx context.Context, client *Client, cfg Config, plan *Plan, before decimal.Decimal, stats *Stats) { //nolint:gocritic // hugeParam: config is a value
	var found mismatches
	ulp := plan.Unit.Ulp()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, owner := range plan.Owners {
		g.Go(func() error {
			checkOwner(gctx, client, owner, plan.Expected[owner], ulp, &found)
			return nil
		})
	}
	_ = g.Wait()
	stats.OwnersChecked = len(plan.Owners)

	checkRanking(ctx, client, cfg.TopN, &found)

	pool, err := client.Pool(ctx)
	if err != nil {
		found.add("pool: %v", err)
	} else if state, err := pool.State(); err != nil {
		found.add("pool: %v", err)
	} else if got, want := state.TotalStaked.Amount.Sub(before), plan.Gross; !got.Equal(want) {
		found.add("pool grew by %s, want %s", got, want)
	}

	stats.Mismatches = found.items
	client.log.Info(ctx, "verification finished",
		logger.Int("owners", stats.OwnersChecked),
		logger.Int("mismatches", len(found.items)))
}

func checkOwner(ctx context.Context, client *Client, owner string, want, ulp decimal.Decimal, found *mismatches) {
	entry, err := client.Rank(ctx, owner)
	if err != nil {
		found.add("%s: rank: %v", owner, err)
		return
	}
	got, err := types.ParseQuantity(entry.Staked)
	if err != nil {
		found.add("%s: staked %q: %v", owner, entry.Staked, err)
		return
	}
	if got.Amount.Sub(want).Abs().GreaterThan(ulp) {
		found.add("%s: staked %s, want %s", owner, got.Amount, want)
	}

	p, err := client.Progress(ctx, owner)
	if err != nil {
		found.add("%s: progress: %v", owner, err)
		return
	}
	for name, v := range map[string]string{"share_percent": p.SharePercent, "progress_percent": p.ProgressPercent} {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() || d.GreaterThan(hundred) {
			found.add("%s: %s %q outside [0, 100]", owner, name, v)
		}
	}
	staked, err1 := types.ParseQuantity(p.StakedAmount)
	safe, err2 := types.ParseQuantity(p.SafeUnstakeAmount)
	if err1 != nil || err2 != nil || safe.Amount.GreaterThan(staked.Amount) {
		found.add("%s: safe unstake %q exceeds stake %q", owner, p.SafeUnstakeAmount, p.StakedAmount)
	}
	if p.NextTierReachable && p.AdditionalAmountForNextTier == nil {
		found.add("%s: next tier reachable without a required amount", owner)
	}
}

// checkRanking asserts non-increasing stakes and competition ranks.
func checkRanking(ctx context.Context, client *Client, n int, found *mismatches) {
	entries, err := client.TopStakers(ctx, n)
	if err != nil {
		found.add("stakers: %v", err)
		return
	}
	var prev decimal.Decimal
	for i, e := range entries {
		q, err := types.ParseQuantity(e.Staked)
		if err != nil {
			found.add("stakers[%d]: %v", i, err)
			return
		}
		want := i + 1
		if i > 0 {
			switch {
			case q.Amount.GreaterThan(prev):
				found.add("stakers[%d]: %s ranks below a smaller stake %s", i, q.Amount, prev)
			case q.Amount.Equal(prev):
				want = entries[i-1].Rank
			}
		}
		if e.Rank != want {
			found.add("stakers[%d]: rank %d, want %d", i, e.Rank, want)
		}
		prev = q.Amount
	}
}
