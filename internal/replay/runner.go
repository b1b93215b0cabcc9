package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/okian/stakingtier/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentMultiplier   = 100
)

// Run errors.
var (
	ErrNotSettled    = errors.New("service did not drain its queue in time")
	ErrVerification  = errors.New("service state does not match the replayed history")
	ErrMalformedPool = errors.New("malformed pool response")
)

// Run replays a generated history against the service and verifies the
// result. It needs a service that receives no other traffic while it runs.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) { //nolint:gocritic // hugeParam: config is a value
	cfg = cfg.withDefaults()
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout, log)

	log.Info(ctx, "starting ledger replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("owners", cfg.Owners),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	before, feeRate, err := serviceParams(ctx, client)
	if err != nil {
		return nil, err
	}
	plan := NewPlan(cfg, before, feeRate)
	stats.EventsPlanned = plan.Len()
	log.Info(ctx, "generated plan",
		logger.String("run", plan.RunID),
		logger.Int("stakes", len(plan.Stakes)),
		logger.Int("duplicates", len(plan.Duplicates)),
		logger.Int("unstakes", len(plan.Unstakes)),
		logger.Decimal("fee_rate", feeRate))

	submit(ctx, client, cfg, plan.Histories, stats, log)
	if err := settle(ctx, client, cfg); err != nil {
		return stats, err
	}

	verify(ctx, client, cfg, plan, before.Amount, stats)

	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, plan); err != nil {
			log.Warn(ctx, "failed to save events", logger.Error(err))
		} else {
			log.Info(ctx, "events saved", logger.String("file", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)

	if len(stats.Mismatches) > 0 {
		for _, m := range stats.Mismatches {
			log.Error(ctx, "mismatch", logger.String("detail", m))
		}
		return stats, fmt.Errorf("%w: %d mismatches", ErrVerification, len(stats.Mismatches))
	}
	if stats.EventsFailed > 0 {
		return stats, fmt.Errorf("%w: %d events failed", ErrVerification, stats.EventsFailed)
	}
	return stats, nil
}

// serviceParams reads the pool total the history starts from, which also
// carries the token unit, and the fee rate.
func serviceParams(ctx context.Context, client *Client) (quantity.Quantity, decimal.Decimal, error) {
	pool, err := client.Pool(ctx)
	if err != nil {
		return quantity.Quantity{}, decimal.Zero, fmt.Errorf("read pool: %w", err)
	}
	state, err := pool.State()
	if err != nil {
		return quantity.Quantity{}, decimal.Zero, fmt.Errorf("%w: %w", ErrMalformedPool, err)
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		return quantity.Quantity{}, decimal.Zero, fmt.Errorf("read stats: %w", err)
	}
	raw, _ := stats["feeRate"].(string)
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return quantity.Quantity{}, decimal.Zero, fmt.Errorf("%w: feeRate %q", ErrMalformedPool, raw)
	}
	return state.TotalStaked, fee, nil
}

// submit posts every history with up to cfg.Workers owners in flight. An
// owner's events are posted one after another, each after the previous was
// acknowledged. Failures are counted, not returned, so one bad event does
// not hide the rest.
func submit(ctx context.Context, client *Client, cfg Config, histories [][]types.EventRequest, stats *Stats, log logger.Logger) { //nolint:gocritic // hugeParam: config is a value
	var events, accepted, duplicate, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, history := range histories {
		g.Go(func() error {
			for _, ev := range history {
				events.Add(1)
				ack, err := client.PostEvent(gctx, ev)
				switch {
				case err != nil:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(gctx, "event rejected", logger.String("event_id", ev.EventID), logger.Error(err))
					}
				case ack.Duplicate:
					duplicate.Add(1)
				default:
					accepted.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.EventsAccepted += int(accepted.Load())
	stats.EventsDuplicate += int(duplicate.Load())
	stats.EventsFailed += int(failed.Load())
	log.Info(ctx, "history submitted",
		logger.Int("owners", len(histories)),
		logger.Int("events", int(events.Load())),
		logger.Int("accepted", int(accepted.Load())),
		logger.Int("duplicate", int(duplicate.Load())),
		logger.Int("failed", int(failed.Load())))
}

// settle waits until no event is queued, pending or being applied for several
// polls in a row.
func settle(ctx context.Context, client *Client, cfg Config) error { //nolint:gocritic // hugeParam: config is a value
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	quiet := 0
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotSettled, ctx.Err())
		case <-ticker.C:
		}
		stats, err := client.Stats(ctx)
		if err != nil {
			quiet = 0
			continue
		}
		queued, _ := stats["queueLength"].(float64)
		pending, _ := stats["pendingEvents"].(float64)
		active, _ := stats["activeWorkers"].(float64)
		if queued == 0 && pending == 0 && active == 0 {
			quiet++
		} else {
			quiet = 0
		}
		if quiet >= quietPolls {
			return nil
		}
	}
}

func saveEvents(filename string, plan *Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	events := make([]types.EventRequest, 0, plan.Len()+len(plan.Duplicates))
	events = append(events, plan.Stakes...)
	events = append(events, plan.Duplicates...)
	events = append(events, plan.Unstakes...)
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, eventsPerSecond float64
	submitted := stats.EventsAccepted + stats.EventsDuplicate + stats.EventsFailed
	if submitted > 0 {
		successRate = float64(stats.EventsAccepted+stats.EventsDuplicate) / float64(submitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("eventsPlanned", stats.EventsPlanned),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("ownersChecked", stats.OwnersChecked),
		logger.Int("mismatches", len(stats.Mismatches)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
