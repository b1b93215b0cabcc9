package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func wax(s string) quantity.Quantity { return quantity.Parse(s + " WAX") }

func testTiers() []tier.Definition {
	return []tier.Definition{
		{ID: "a", DisplayName: "A", Multiplier: dec("1"), UpperThresholdPercent: dec("1")},
		{ID: "b", DisplayName: "B", Multiplier: dec("1.5"), UpperThresholdPercent: dec("5")},
		{ID: "c", DisplayName: "C", Multiplier: dec("2"), UpperThresholdPercent: dec("100")},
	}
}

func newTestStore(t *testing.T, opts ...Option) *TreapStore {
	t.Helper()
	opts = append([]Option{WithFeeRate(dec("0.003")), WithTiers(testTiers())}, opts...)
	s := NewTreapStore(context.Background(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTreapStore_StakeAndUnstake(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	acct, err := store.ApplyStake(ctx, "alice", wax("100.00000000"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.StakedAmount.Amount.Equal(dec("99.7")) {
		t.Errorf("expected credited 99.7, got %s", acct.StakedAmount.Amount)
	}
	if pool := store.Pool(ctx); !pool.TotalStaked.Amount.Equal(dec("100")) {
		t.Errorf("expected pool 100, got %s", pool.TotalStaked.Amount)
	}

	acct, err = store.ApplyUnstake(ctx, "alice", wax("9.70000000"), time.Hour, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.StakedAmount.Amount.Equal(dec("90")) {
		t.Errorf("expected 90 after unstake, got %s", acct.StakedAmount.Amount)
	}
	if !acct.CooldownEndAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expected cooldown end %v, got %v", now.Add(time.Hour), acct.CooldownEndAt)
	}
	if pool := store.Pool(ctx); !pool.TotalStaked.Amount.Equal(dec("90.3")) {
		t.Errorf("expected pool 90.3, got %s", pool.TotalStaked.Amount)
	}

	if _, err := store.ApplyUnstake(ctx, "alice", wax("90.00000001"), 0, now); !errors.Is(err, ErrInsufficientStake) {
		t.Errorf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := store.ApplyUnstake(ctx, "nobody", wax("1.0"), 0, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	acct, err = store.ApplyUnstake(ctx, "alice", wax("90.0"), 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.StakedAmount.IsZero() {
		t.Errorf("expected empty account, got %s", acct.StakedAmount)
	}
	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected no ranked stakers, got %d", count)
	}
	if _, err := store.View(ctx, "alice"); err != nil {
		t.Errorf("emptied account should still be viewable: %v", err)
	}
}

func TestTreapStore_RejectsBadAmounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.ApplyStake(ctx, "alice", quantity.Parse("1.0 TOK"), time.Now()); !errors.Is(err, ErrSymbolMismatch) {
		t.Errorf("expected ErrSymbolMismatch, got %v", err)
	}
	if _, err := store.ApplyStake(ctx, "alice", wax("0.0"), time.Now()); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if err := store.SetPool(ctx, model.PoolState{TotalStaked: quantity.Parse("1.0 TOK")}); !errors.Is(err, ErrSymbolMismatch) {
		t.Errorf("expected ErrSymbolMismatch, got %v", err)
	}
}

func TestTreapStore_Ranking(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithFeeRate(decimal.Zero))
	now := time.Now()

	for owner, amt := range map[string]string{"carol": "50.0", "alice": "300.0", "bob": "50.0", "dave": "10.0"} {
		if _, err := store.ApplyStake(ctx, owner, wax(amt), now); err != nil {
			t.Fatalf("stake %s: %v", owner, err)
		}
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct {
		owner string
		rank  int
	}{{"alice", 1}, {"bob", 2}, {"carol", 2}, {"dave", 4}}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Owner != w.owner || entries[i].Rank != w.rank {
			t.Errorf("entry %d: expected %s#%d, got %s#%d", i, w.owner, w.rank, entries[i].Owner, entries[i].Rank)
		}
		r, err := store.Rank(ctx, w.owner)
		if err != nil {
			t.Fatalf("rank %s: %v", w.owner, err)
		}
		if r.Rank != w.rank {
			t.Errorf("Rank(%s): expected %d, got %d", w.owner, w.rank, r.Rank)
		}
	}

	top2, _ := store.TopN(ctx, 2)
	if len(top2) != 2 || top2[1].Owner != "bob" {
		t.Errorf("unexpected top 2: %+v", top2)
	}
	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.Rank(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Moving dave past alice must reorder the treap.
	if _, err := store.ApplyStake(ctx, "dave", wax("1000.0"), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, _ := store.Rank(ctx, "dave"); r.Rank != 1 {
		t.Errorf("expected dave first, got %d", r.Rank)
	}
	if r, _ := store.Rank(ctx, "alice"); r.Rank != 2 {
		t.Errorf("expected alice second, got %d", r.Rank)
	}
}

func TestTreapStore_TiersAndWeight(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithFeeRate(decimal.Zero))
	now := time.Now()

	_, _ = store.ApplyStake(ctx, "alice", wax("100.0"), now)
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("100")) {
		t.Errorf("untiered stake should weigh 1x, got %s", w)
	}

	if _, err := store.SetTier(ctx, "alice", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("150")) {
		t.Errorf("expected weight 150 in tier b, got %s", w)
	}

	updated := testTiers()
	updated[1].Multiplier = dec("3")
	if err := store.SetTiers(ctx, updated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("300")) {
		t.Errorf("expected weight 300 after multiplier change, got %s", w)
	}
	if err := store.SetTiers(ctx, nil); !errors.Is(err, tier.ErrEmptyTable) {
		t.Errorf("expected ErrEmptyTable, got %v", err)
	}

	view, err := store.View(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Account.Tier != "b" || len(view.Tiers) != 3 || !view.Pool.TotalStaked.Amount.Equal(dec("100")) {
		t.Errorf("unexpected view: %+v", view)
	}

	// A tier change for an unseen owner opens an empty account.
	acct, _ := store.SetTier(ctx, "bob", "a")
	if !acct.StakedAmount.IsZero() || acct.StakedAmount.Symbol != "WAX" {
		t.Errorf("unexpected new account: %+v", acct)
	}

	claimed, err := store.RecordClaim(ctx, "alice", now)
	if err != nil || !claimed.LastClaimedAt.Equal(now) {
		t.Errorf("claim not recorded: %+v %v", claimed, err)
	}
	if _, err := store.RecordClaim(ctx, "nobody", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapStore_TierLookup(t *testing.T) {
	ctx := context.Background()
	dup := append(testTiers(), tier.Definition{ID: "a", Multiplier: dec("9"), UpperThresholdPercent: dec("50")})
	store := NewTreapStore(ctx, WithTiers(dup), WithFeeRate(decimal.Zero))
	t.Cleanup(func() { _ = store.Close() })

	if got := store.Tiers(ctx); len(got) != 0 {
		t.Fatalf("an invalid seed table should not be installed, got %d tiers", len(got))
	}

	_, _ = store.ApplyStake(ctx, "alice", wax("10.0"), time.Now())
	_, _ = store.SetTier(ctx, "alice", "a")
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("10")) {
		t.Errorf("without a table every tier weighs 1x, got %s", w)
	}

	if err := store.SetTiers(ctx, testTiers()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = store.SetTier(ctx, "alice", "unknown")
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("10")) {
		t.Errorf("an unknown tier should weigh 1x, got %s", w)
	}
	_, _ = store.SetTier(ctx, "alice", "c")
	if w := store.Pool(ctx).TotalWeight.Amount; !w.Equal(dec("20")) {
		t.Errorf("expected weight 20 in tier c, got %s", w)
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithFeeRate(decimal.Zero))
	const goroutines, stakes = 8, 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < stakes; j++ {
				owner := fmt.Sprintf("owner%d_%d", g, j)
				if _, err := store.ApplyStake(ctx, owner, wax(fmt.Sprintf("%d.0", j+1)), time.Now()); err != nil {
					t.Errorf("stake %s: %v", owner, err)
				}
				_, _ = store.TopN(ctx, 5)
			}
		}(g)
	}
	wg.Wait()

	if count := store.Count(ctx); count != goroutines*stakes {
		t.Errorf("expected %d stakers, got %d", goroutines*stakes, count)
	}
	entries, _ := store.TopN(ctx, 20)
	for i := 1; i < len(entries); i++ {
		if entries[i].Staked.Amount.GreaterThan(entries[i-1].Staked.Amount) {
			t.Errorf("entries not in descending order at %d", i)
		}
	}
	// (1+...+100) staked by each goroutine.
	if total := store.Pool(ctx).TotalStaked.Amount; !total.Equal(decimal.NewFromInt(goroutines * 5050)) {
		t.Errorf("unexpected pool total %s", total)
	}
}

func TestTreapStore_RankMatchesScan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithFeeRate(decimal.Zero))
	rng := rand.New(rand.NewSource(7))

	stakes := make(map[string]int, 300)
	for i := 0; i < 300; i++ {
		owner := fmt.Sprintf("o%03d", i)
		amt := rng.Intn(50) + 1
		stakes[owner] = amt
		_, _ = store.ApplyStake(ctx, owner, wax(fmt.Sprintf("%d.0", amt)), time.Now())
	}
	for owner, amt := range stakes {
		above := 0
		for _, other := range stakes {
			if other > amt {
				above++
			}
		}
		r, err := store.Rank(ctx, owner)
		if err != nil {
			t.Fatalf("rank %s: %v", owner, err)
		}
		if r.Rank != above+1 {
			t.Errorf("%s: expected rank %d, got %d", owner, above+1, r.Rank)
		}
	}
}

func TestTreapStore_CloseBehavior(t *testing.T) {
	store := NewTreapStore(context.Background(), WithMetricsUpdateInterval(10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	if err := store.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
}

func BenchmarkTreapStore_ApplyStake(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	amt := wax("1.00000000")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.ApplyStake(ctx, fmt.Sprintf("owner%d", i%10_000), amt, time.Time{})
	}
}

func BenchmarkTreapStore_Rank(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	for i := 0; i < 100_000; i++ {
		_, _ = store.ApplyStake(ctx, fmt.Sprintf("owner%d", i), wax(fmt.Sprintf("%d.0", i%977+1)), time.Time{})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Rank(ctx, fmt.Sprintf("owner%d", i%100_000))
	}
}
