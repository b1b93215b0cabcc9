// Package service wires the ledger store, the event pipeline and the tier
// engine into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/stakingtier/internal/adapters/mq/queue"
	workerpool "github.com/okian/stakingtier/internal/adapters/mq/worker"
	"github.com/okian/stakingtier/internal/adapters/repository"
	"github.com/okian/stakingtier/internal/domain/dedupe"
	"github.com/okian/stakingtier/internal/domain/engine"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/okian/stakingtier/pkg/logger"
	"github.com/okian/stakingtier/pkg/metrics"
	"github.com/shopspring/decimal"
)

const (
	defaultQueueSize  = 100_000
	defaultDedupeSize = 500_000
	drainTimeout      = 30 * time.Second
)

var defaultFeeRate = decimal.RequireFromString("0.003") //nolint:gochecknoglobals // observed ledger fee

// Service implements the API dependencies for the staking tier system.
type Service struct {
	mu sync.RWMutex

	store      *repository.TreapStore
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	workerCount   int
	queueSize     int
	dedupeSize    int
	feeRate       decimal.Decimal
	bufferPercent decimal.Decimal
	symbol        string
	decimals      uint8
	tiers         []tier.Definition

	started bool
	cancel  context.CancelFunc
	logger  logger.Logger
}

var (
	_ workerpool.Applier   = (*Service)(nil)
	_ workerpool.Evaluator = (*Service)(nil)
)

// New constructs a Service. The store, deduper and queue exist right away;
// Start installs the tier table and launches the workers.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		feeRate:     defaultFeeRate,
		symbol:      quantity.DefaultSymbol,
		decimals:    quantity.DefaultDecimals,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.store = repository.NewTreapStore(context.Background(),
		repository.WithFeeRate(s.feeRate),
		repository.WithSymbol(s.symbol, s.decimals),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	return s
}

// Start validates the tier table and starts the worker pool. The workers
// outlive ctx's cancellation; only Stop ends them, after draining the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting staking tier service...")
	if len(s.tiers) > 0 {
		if err := s.store.SetTiers(ctx, s.tiers); err != nil {
			return fmt.Errorf("install tier table: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s, s)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "staking tier service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("tiers", len(s.tiers)),
		logger.Decimal("fee_rate", s.feeRate),
	)
	return nil
}

// Stop closes the queue, lets the workers drain it and releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		_ = s.store.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping staking tier service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	_ = s.store.Close()

	s.started = false
	s.logger.Info(ctx, "staking tier service stopped")
}

// SeenAndRecord atomically checks whether an event id was seen and records
// it if not. It returns true for a duplicate.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord forgets an event id so the event can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered event ids.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue validates e and submits it for asynchronous processing. It does
// not deduplicate; callers pair it with SeenAndRecord.
func (s *Service) Enqueue(ctx context.Context, e model.LedgerEvent) error { //nolint:gocritic // hugeParam: events travel by value
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if e.Kind == model.KindStake || e.Kind == model.KindUnstake {
		if e.Quantity.Symbol != s.symbol {
			return fmt.Errorf("%w: %w", ErrInvalidInput, repository.ErrSymbolMismatch)
		}
	}
	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.EventID, err)
	}
	s.logger.Debug(ctx, "event enqueued",
		logger.String("event_id", e.EventID),
		logger.String("owner", e.Owner),
		logger.String("kind", string(e.Kind)),
	)
	return nil
}

// Apply writes one ledger event into the store.
func (s *Service) Apply(ctx context.Context, e model.LedgerEvent) (model.StakeAccount, error) { //nolint:gocritic // hugeParam: events travel by value
	switch e.Kind {
	case model.KindStake:
		return s.store.ApplyStake(ctx, e.Owner, e.Quantity, e.TS)
	case model.KindUnstake:
		return s.store.ApplyUnstake(ctx, e.Owner, e.Quantity, e.Cooldown, e.TS)
	case model.KindClaim:
		return s.store.RecordClaim(ctx, e.Owner, e.TS)
	case model.KindTierChange:
		return s.store.SetTier(ctx, e.Owner, e.Tier)
	default:
		return model.StakeAccount{}, fmt.Errorf("%w: %q", model.ErrUnknownKind, string(e.Kind))
	}
}

// Evaluate derives owner's tier snapshot from the current ledger state.
func (s *Service) Evaluate(ctx context.Context, owner string) (engine.Result, error) {
	res, _, err := s.evaluate(ctx, owner)
	return res, err
}

func (s *Service) evaluate(ctx context.Context, owner string) (engine.Result, repository.View, error) {
	view, err := s.store.View(ctx, owner)
	if err != nil {
		return engine.Result{}, repository.View{}, err
	}
	res, err := s.calculate(engine.ForAccount(view.Account, view.Pool, view.Tiers, s.feeRate, s.bufferPercent))
	return res, view, err
}

// calculate runs the engine and records the outcome.
func (s *Service) calculate(in engine.Input) (engine.Result, error) { //nolint:gocritic // hugeParam: inputs are values
	start := time.Now()
	res, err := engine.Calculate(in)
	latency := float64(time.Since(start).Microseconds()) / 1000

	switch {
	case err == nil:
		metrics.RecordCalculation(metrics.OutcomeOK, latency)
		return res, nil
	case errors.Is(err, engine.ErrInsufficientData):
		metrics.RecordCalculation(metrics.OutcomeInsufficientData, latency)
	case errors.Is(err, engine.ErrNoTiers):
		metrics.RecordCalculation(metrics.OutcomeNoTiers, latency)
	case errors.Is(err, engine.ErrInvalidFeeRate):
		metrics.RecordCalculation(metrics.OutcomeError, latency)
		return engine.Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		metrics.RecordCalculation(metrics.OutcomeError, latency)
	}
	return engine.Result{}, fmt.Errorf("%w: %w", ErrNoResult, err)
}

// TierProgress evaluates a ledger account.
func (s *Service) TierProgress(ctx context.Context, owner string) (types.TierProgress, error) {
	res, view, err := s.evaluate(ctx, owner)
	if err != nil {
		return types.TierProgress{}, err
	}
	return types.NewTierProgress(owner, view.Account.Tier, res), nil
}

// Calculate evaluates an arbitrary stake against an arbitrary pool. Unset
// request fields fall back to the service configuration and tier table.
func (s *Service) Calculate(ctx context.Context, req types.CalculateRequest) (types.TierProgress, error) { //nolint:gocritic // hugeParam: requests are values
	in, err := req.Input(s.feeRate, s.bufferPercent, s.store.Tiers(ctx))
	if err != nil {
		return types.TierProgress{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	res, err := s.calculate(in)
	if err != nil {
		return types.TierProgress{}, err
	}
	return types.NewTierProgress("", in.ClaimedTier, res), nil
}

// TopStakers returns the n largest stakes.
func (s *Service) TopStakers(ctx context.Context, n int) ([]types.StakerEntry, error) {
	entries, err := s.store.TopN(ctx, n)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLimit) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, err
	}
	out := make([]types.StakerEntry, len(entries))
	for i, e := range entries {
		out[i] = types.NewStakerEntry(e.Rank, e.Owner, e.Staked, e.Tier)
	}
	return out, nil
}

// Rank returns owner's position among stakers.
func (s *Service) Rank(ctx context.Context, owner string) (types.StakerEntry, error) {
	e, err := s.store.Rank(ctx, owner)
	if err != nil {
		return types.StakerEntry{}, err
	}
	return types.NewStakerEntry(e.Rank, e.Owner, e.Staked, e.Tier), nil
}

// Tiers returns the tier table, lowest first.
func (s *Service) Tiers(ctx context.Context) []types.TierView {
	return types.TierViews(s.store.Tiers(ctx))
}

// SetTiers validates and installs a new tier table.
func (s *Service) SetTiers(ctx context.Context, views []types.TierView) ([]types.TierView, error) {
	defs, err := types.ParseTierViews(views)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.SetTiers(ctx, defs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	s.mu.Lock()
	s.tiers = defs
	s.mu.Unlock()
	s.logger.Info(ctx, "tier table replaced", logger.Int("tiers", len(defs)))
	return s.Tiers(ctx), nil
}

// Pool returns the pool totals.
func (s *Service) Pool(ctx context.Context) types.PoolView {
	return types.NewPoolView(s.store.Pool(ctx))
}

// SetPool overrides the pool totals with an external ledger reading.
func (s *Service) SetPool(ctx context.Context, v types.PoolView) (types.PoolView, error) {
	p, err := v.State()
	if err != nil {
		return types.PoolView{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.SetPool(ctx, p); err != nil {
		return types.PoolView{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.Pool(ctx), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	pool := s.store.Pool(ctx)
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"queueLength": s.eventQueue.Len(ctx),
		"seenEvents":  s.deduper.Size(),
		"stakers":     s.store.Count(ctx),
		"tiers":       len(s.store.Tiers(ctx)),
		"totalStaked": pool.TotalStaked.String(),
		"totalWeight": pool.TotalWeight.String(),
		"feeRate":     s.feeRate.String(),
	}
	if s.workerPool != nil {
		stats["activeWorkers"] = s.workerPool.Active()
		stats["pendingEvents"] = s.workerPool.Pending()
	}
	return stats
}
