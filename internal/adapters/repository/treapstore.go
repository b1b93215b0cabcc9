package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/okian/stakingtier/pkg/metrics"
	"github.com/shopspring/decimal"
)

const defaultMetricsUpdateInterval = 5 * time.Second

var one = decimal.NewFromInt(1)

// TreapStore is the in-memory Store. Accounts with a positive stake are
// also indexed in a treap so ranking queries run in O(log n).
type TreapStore struct {
	mu       sync.RWMutex
	root     *node
	accounts map[string]model.StakeAccount
	pool     model.PoolState
	tiers    *tier.Table // nil until a table is installed

	feeRate  decimal.Decimal
	symbol   string
	decimals uint8

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs an empty ledger store and starts its gauge
// updater, which stops when ctx is done or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		accounts:              make(map[string]model.StakeAccount),
		symbol:                quantity.DefaultSymbol,
		decimals:              quantity.DefaultDecimals,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = model.PoolState{TotalStaked: s.zero(), TotalWeight: s.zero()}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *TreapStore) zero() quantity.Quantity {
	return quantity.New(decimal.Zero, s.symbol, s.decimals)
}

// Close stops the background updater.
func (s *TreapStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *TreapStore) checkAmount(q quantity.Quantity) error {
	if !q.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if q.Symbol != s.symbol {
		return fmt.Errorf("%w: got %s, pool is %s", ErrSymbolMismatch, q.Symbol, s.symbol)
	}
	return nil
}

// multiplier returns the weight multiplier for a recorded tier; unknown or
// unset tiers weigh 1.
func (s *TreapStore) multiplier(id tier.ID) decimal.Decimal {
	if s.tiers == nil {
		return one
	}
	if d, ok := s.tiers.Lookup(id); ok {
		return d.Multiplier
	}
	return one
}

func (s *TreapStore) account(owner string) model.StakeAccount {
	if a, ok := s.accounts[owner]; ok {
		return a
	}
	return model.StakeAccount{Owner: owner, StakedAmount: s.zero()}
}

// replace swaps old for updated in the index, the account map and the pool
// weight. Callers hold the write lock.
func (s *TreapStore) replace(old, updated model.StakeAccount) {
	if old.StakedAmount.Amount.IsPositive() {
		s.root = deleteNode(s.root, old.Owner, old.StakedAmount.Amount)
	}
	if updated.StakedAmount.Amount.IsPositive() {
		s.root = insert(s.root, updated.Owner, updated.StakedAmount.Amount)
	}
	w := s.pool.TotalWeight.Amount.
		Sub(old.StakedAmount.Amount.Mul(s.multiplier(old.Tier))).
		Add(updated.StakedAmount.Amount.Mul(s.multiplier(updated.Tier)))
	s.pool.TotalWeight = s.pool.TotalWeight.WithAmount(w)
	s.accounts[updated.Owner] = updated
}

// ApplyStake credits gross*(1-fee) to the owner and gross to the pool. The
// credited amount is kept exact; Decimals only governs formatting.
func (s *TreapStore) ApplyStake(_ context.Context, owner string, gross quantity.Quantity, _ time.Time) (model.StakeAccount, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if err := s.checkAmount(gross); err != nil {
		return model.StakeAccount{}, err
	}
	credited := gross.Amount.Mul(one.Sub(s.feeRate))

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.account(owner)
	updated := old
	updated.StakedAmount = old.StakedAmount.WithAmount(old.StakedAmount.Amount.Add(credited))
	s.pool.TotalStaked = s.pool.TotalStaked.WithAmount(s.pool.TotalStaked.Amount.Add(gross.Amount))
	s.replace(old, updated)
	return updated, nil
}

// ApplyUnstake withdraws amount from the owner and the pool.
func (s *TreapStore) ApplyUnstake(_ context.Context, owner string, amount quantity.Quantity, cooldown time.Duration, ts time.Time) (model.StakeAccount, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if err := s.checkAmount(amount); err != nil {
		return model.StakeAccount{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.accounts[owner]
	if !ok {
		return model.StakeAccount{}, ErrNotFound
	}
	if amount.Amount.GreaterThan(old.StakedAmount.Amount) || amount.Amount.GreaterThan(s.pool.TotalStaked.Amount) {
		return model.StakeAccount{}, fmt.Errorf("%w: %s holds %s", ErrInsufficientStake, owner, old.StakedAmount)
	}
	updated := old
	updated.StakedAmount = old.StakedAmount.WithAmount(old.StakedAmount.Amount.Sub(amount.Amount))
	if cooldown > 0 {
		updated.CooldownEndAt = ts.Add(cooldown)
	}
	s.pool.TotalStaked = s.pool.TotalStaked.WithAmount(s.pool.TotalStaked.Amount.Sub(amount.Amount))
	s.replace(old, updated)
	return updated, nil
}

// RecordClaim stamps the last claim time of a known owner.
func (s *TreapStore) RecordClaim(_ context.Context, owner string, ts time.Time) (model.StakeAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[owner]
	if !ok {
		return model.StakeAccount{}, ErrNotFound
	}
	a.LastClaimedAt = ts
	s.accounts[owner] = a
	return a, nil
}

// SetTier records the ledger's tier for owner, creating the account if needed.
func (s *TreapStore) SetTier(_ context.Context, owner string, id tier.ID) (model.StakeAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.account(owner)
	updated := old
	updated.Tier = id
	s.replace(old, updated)
	return updated, nil
}

// SetPool overrides the pool totals. The symbol must match the store's.
func (s *TreapStore) SetPool(_ context.Context, pool model.PoolState) error {
	if pool.TotalStaked.Symbol != s.symbol {
		return fmt.Errorf("%w: got %s, pool is %s", ErrSymbolMismatch, pool.TotalStaked.Symbol, s.symbol)
	}
	if pool.TotalStaked.Amount.IsNegative() || pool.TotalWeight.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	return nil
}

// Pool returns the current pool totals.
func (s *TreapStore) Pool(_ context.Context) model.PoolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// SetTiers validates and installs a new tier table, moving the pool weight
// by each account's multiplier change.
func (s *TreapStore) SetTiers(_ context.Context, defs []tier.Definition) error {
	table, err := tier.NewTable(defs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.pool.TotalWeight.Amount
	for _, a := range s.accounts {
		if a.Tier == "" || !a.StakedAmount.Amount.IsPositive() {
			continue
		}
		w = w.Sub(a.StakedAmount.Amount.Mul(s.multiplier(a.Tier)))
	}
	s.tiers = table
	for _, a := range s.accounts {
		if a.Tier == "" || !a.StakedAmount.Amount.IsPositive() {
			continue
		}
		w = w.Add(a.StakedAmount.Amount.Mul(s.multiplier(a.Tier)))
	}
	s.pool.TotalWeight = s.pool.TotalWeight.WithAmount(w)
	return nil
}

// Tiers returns a copy of the sorted tier table.
func (s *TreapStore) Tiers(_ context.Context) []tier.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.definitions()
}

// definitions copies the installed table. Callers hold the lock.
func (s *TreapStore) definitions() []tier.Definition {
	if s.tiers == nil {
		return []tier.Definition{}
	}
	return s.tiers.Definitions()
}

// View reads account, pool and tiers under a single read lock.
func (s *TreapStore) View(_ context.Context, owner string) (View, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[owner]
	if !ok {
		return View{}, ErrNotFound
	}
	return View{Account: a, Pool: s.pool, Tiers: s.definitions()}, nil
}

// Rank returns the owner's competition rank ("1224") by staked amount.
func (s *TreapStore) Rank(_ context.Context, owner string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[owner]
	if !ok || !a.StakedAmount.Amount.IsPositive() {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:   countAbove(s.root, a.StakedAmount.Amount) + 1,
		Owner:  owner,
		Staked: a.StakedAmount,
		Tier:   a.Tier,
	}, nil
}

// TopN returns up to n entries, largest stake first.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*node, 0, min(n, nsize(s.root)))
	collectTopN(s.root, n, &nodes)

	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.staked.Equal(nodes[i-1].staked) {
			rank = out[i-1].Rank
		}
		a := s.accounts[nd.owner]
		out[i] = Entry{Rank: rank, Owner: nd.owner, Staked: a.StakedAmount, Tier: a.Tier}
	}
	return out, nil
}

// Count returns the number of owners with a positive stake.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nsize(s.root)
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *TreapStore) updateMetrics() {
	s.mu.RLock()
	count := nsize(s.root)
	total := s.pool.TotalStaked.Amount.InexactFloat64()
	s.mu.RUnlock()

	metrics.UpdateStakers(count)
	metrics.UpdatePoolTotal(total)
}
