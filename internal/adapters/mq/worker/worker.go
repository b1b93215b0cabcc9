// Package worker applies queued ledger events to the snapshot and
// re-evaluates the affected owner's tier.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/stakingtier/internal/domain/engine"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/okian/stakingtier/pkg/logger"
	"github.com/okian/stakingtier/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	laneBuffer              = 256
)

// Event is what workers read off the queue.
type Event = model.LedgerEvent

// Applier writes one ledger event into the snapshot.
type Applier interface {
	Apply(ctx context.Context, e Event) (model.StakeAccount, error)
}

// Evaluator derives the current tier snapshot for an owner.
type Evaluator interface {
	Evaluate(ctx context.Context, owner string) (engine.Result, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes ledger events.
type Worker interface {
	// Run consumes events until ctx is done, the queue closes or Shutdown
	// is called.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	applier   Applier
	evaluator Evaluator
	name      string
	busy      func(delta int)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, applier Applier, evaluator Evaluator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		applier:   applier,
		evaluator: evaluator,
		name:      "worker",
		busy:      func(int) {},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Cancelling on return releases the queue's forwarder goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.busy(1)
			if err := w.processEvent(ctx, ev); err != nil {
				w.logger.Error(ctx, "error processing event", logger.String("event_id", ev.EventID), logger.Error(err))
			}
			w.busy(-1)
		}
	}
}

// Shutdown stops the loop after the event in flight, if any.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processEvent(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: events travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	kind := string(ev.Kind)
	if _, err := w.applier.Apply(ctx, ev); err != nil {
		metrics.RecordLedgerEvent(kind, metrics.EventFailed)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_error")
		return fmt.Errorf("apply %s event for %s: %w", kind, ev.Owner, err)
	}
	metrics.RecordLedgerEvent(kind, metrics.EventApplied)

	res, err := w.evaluator.Evaluate(ctx, ev.Owner)
	switch {
	case errors.Is(err, engine.ErrInsufficientData):
		// Empty pool after the last unstake; nothing to evaluate.
		w.logger.Debug(ctx, "tier evaluation skipped", logger.String("owner", ev.Owner))
		return nil
	case err != nil:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "evaluate_error")
		return fmt.Errorf("evaluate %s: %w", ev.Owner, err)
	}

	metrics.RecordTierResolution(string(res.CurrentTier.ID))
	if res.Claim == tier.ClaimUpgradeAvailable {
		metrics.RecordUpgradeAvailable()
		w.logger.Info(ctx, "tier upgrade available",
			logger.String("owner", ev.Owner),
			logger.String("tier", string(res.CurrentTier.ID)),
			logger.Decimal("share_percent", res.SharePercent),
		)
	}
	if res.NextTier != nil && !res.NextTierReachable {
		metrics.RecordTierUnreachable()
	}
	return nil
}

// lane is one worker's private feed. It satisfies Queue so a worker reads
// it the same way it would read the shared queue.
type lane chan Event

func (l lane) Dequeue(context.Context) <-chan Event { return l }

// Pool runs a fixed set of workers over one queue. A single dispatcher
// moves events from the queue onto per-worker lanes picked by owner, so
// events of one owner are applied one at a time in queue order.
type Pool struct {
	workers []*InMemoryWorker
	lanes   []lane
	queue   Queue
	active  atomic.Int64
	pending atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates workerCount workers. A count below one picks a default
// from the CPU count.
func NewPool(workerCount int, queue Queue, applier Applier, evaluator Evaluator) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		lanes:    make([]lane, workerCount),
		queue:    queue,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	busy := func(delta int) {
		p.active.Add(int64(delta))
		if delta < 0 {
			p.pending.Add(-1)
		}
	}
	for i := 0; i < workerCount; i++ {
		p.lanes[i] = make(lane, laneBuffer)
		p.workers[i] = NewInMemoryWorker(p.lanes[i], applier, evaluator,
			WithName("worker-"+strconv.Itoa(i)),
			withBusy(busy),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	p.updateMetrics()
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns how many workers are processing an event right now.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Pending returns how many events have left the queue but are not yet
// applied.
func (p *Pool) Pending() int { return int(p.pending.Load()) }

// LaneFor returns the index of the worker that applies owner's events.
func (p *Pool) LaneFor(owner string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return int(h.Sum32() % uint32(len(p.lanes))) //nolint:gosec // lane count is small and positive
}

// Start launches the dispatcher, every worker and the gauge updater.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
	go p.startMetricsUpdater(ctx)
}

// dispatch routes queued events to lanes until the queue is drained, ctx
// is done or Stop is called. Closing the lanes lets the workers finish what
// they hold and return.
func (p *Pool) dispatch(ctx context.Context) {
	defer func() {
		for _, l := range p.lanes {
			close(l)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.pending.Add(1)
			select {
			case p.lanes[p.LaneFor(ev.Owner)] <- ev:
			case <-ctx.Done():
				p.pending.Add(-1)
				return
			case <-p.shutdown:
				p.pending.Add(-1)
				return
			}
		}
	}
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	active := p.Active()
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(len(p.workers) - active)
}

// Stop signals every worker to stop without draining the queue.
func (p *Pool) Stop(ctx context.Context) {
	p.shutdownOnce.Do(func() { close(p.shutdown) })
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker stop timed out", logger.Int("worker_id", i))
		}
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	defer p.shutdownOnce.Do(func() { close(p.shutdown) })

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool drain: %w", ctx.Err())
		}
	}
	return nil
}
