// Package processor schedules checklist items onto a bounded pool of agent
// invocations and builds the run report.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/ctxlog"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/executor"
	"github.com/hochfrequenz/checklist-orch/internal/observer"
)

const (
	NoteBudgetExhausted = "iteration budget exhausted"
	NoteCancelled       = "cancelled"

	defaultProgressInterval = time.Minute
)

var (
	// ErrDuplicateItem is returned when two backlog items share an ID
	ErrDuplicateItem = errors.New("duplicate item id")
	// ErrAlreadyStarted is returned when Process is called twice on one Processor
	ErrAlreadyStarted = errors.New("processor already started")
	// ErrNoInvoker is returned when a non dry run has no invoker
	ErrNoInvoker = errors.New("no invoker configured")
)

// Processor runs a backlog of checklist items. A Processor is single-use.
type Processor struct {
	cfg     *config.RunConfig
	invoker executor.Invoker
	logger  *slog.Logger

	source           Source
	changes          <-chan struct{}
	recorder         *observer.Recorder
	onOutcome        OutcomeFunc
	now              func() time.Time
	runID            string
	progressInterval time.Duration

	mu        sync.Mutex
	started   bool
	cancelled bool
	cancel    context.CancelFunc
}

// completion is what a worker hands back to the scheduler
type completion struct {
	item    *domain.ChecklistItem
	outcome executor.Outcome
}

// New creates a Processor
func New(cfg *config.RunConfig, invoker executor.Invoker, opts ...Option) *Processor {
	p := &Processor{
		cfg:              cfg,
		invoker:          invoker,
		logger:           slog.Default(),
		now:              time.Now,
		progressInterval: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.recorder == nil {
		p.recorder = observer.NewRecorder(0)
	}
	return p
}

// Cancel stops new dispatches and kills in-flight agents. Safe to call
// any number of times, before or during Process.
func (p *Processor) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	cancel := p.cancel
	p.mu.Unlock()

	p.logger.Info("cancellation requested")
	if cancel != nil {
		cancel()
	}
}

func (p *Processor) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// Process runs every pending item of items and returns the run report.
// Per-item failures are reported, not returned; the error is non-nil only
// when the run could not start.
func (p *Processor) Process(ctx context.Context, items []*domain.ChecklistItem) (domain.RunReport, error) {
	if err := checkUnique(items); err != nil {
		return domain.RunReport{}, err
	}
	if p.invoker == nil && !p.cfg.DryRun() {
		return domain.RunReport{}, ErrNoInvoker
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return domain.RunReport{}, ErrAlreadyStarted
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	if p.cancelled {
		cancel()
	}
	p.mu.Unlock()
	defer cancel()

	var backlog []*domain.ChecklistItem
	for _, item := range items {
		if item.Status == "" || item.Status == domain.StatusPending {
			backlog = append(backlog, item)
		}
	}

	startedAt := p.now()
	p.logger.Info("run started",
		"run_id", p.runID,
		"items", len(backlog),
		"runtime", p.cfg.Runtime(),
		"model", p.cfg.EffectiveModel(),
		"batch_size", p.cfg.BatchSize(),
		"max_iterations", p.cfg.MaxIterations(),
		"mode", p.cfg.Mode(),
		"dry_run", p.cfg.DryRun(),
	)

	var order []string
	if p.cfg.DryRun() {
		order = p.preview(backlog)
	} else {
		order = p.schedule(runCtx, backlog)
	}

	report := p.recorder.Finalize(observer.RunMeta{
		RunID:      p.runID,
		DryRun:     p.cfg.DryRun(),
		Cancelled:  p.isCancelled() || ctx.Err() != nil,
		StartedAt:  startedAt,
		FinishedAt: p.now(),
		Order:      order,
	})

	p.logger.Info("run finished",
		"run_id", report.RunID,
		"processed", report.Processed,
		"completed", report.Completed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"cancelled", report.Cancelled,
		"duration", report.Duration().Round(time.Millisecond),
	)
	return report, nil
}

// preview marks every item skipped without invoking the agent
func (p *Processor) preview(backlog []*domain.ChecklistItem) []string {
	note := fmt.Sprintf("dry run: would dispatch to %s/%s", p.cfg.Runtime(), p.cfg.EffectiveModel())
	order := make([]string, 0, len(backlog))
	for _, item := range backlog {
		order = append(order, item.ID)
		p.logger.Info("would dispatch", "item", item.ID, "tier", item.Tier.String())
		p.finish(item, domain.StatusSkipped, domain.ItemResult{Note: note}, executor.Outcome{})
	}
	return order
}

// schedule is the dispatch loop. It is the only code that changes item status.
func (p *Processor) schedule(ctx context.Context, backlog []*domain.ChecklistItem) []string {
	queue := append([]*domain.ChecklistItem(nil), backlog...)
	seen := make(map[string]bool, len(queue))
	for _, item := range queue {
		seen[item.ID] = true
	}

	slots := newSlotPool(p.cfg.BatchSize())
	slots.onChange = func(inUse, capacity int) {
		p.logger.Debug("slots changed", "in_use", inUse, "capacity", capacity)
	}

	var progress <-chan time.Time
	if p.cfg.Verbose() && p.progressInterval > 0 {
		ticker := time.NewTicker(p.progressInterval)
		defer ticker.Stop()
		progress = ticker.C
	}

	results := make(chan completion)
	var g errgroup.Group
	next, dispatched := 0, 0

	for {
		for ctx.Err() == nil && next < len(queue) && dispatched < p.cfg.MaxIterations() && slots.TryAcquire() {
			item := queue[next]
			next++
			dispatched++
			p.dispatch(ctx, &g, item, results)
		}

		if slots.InUse() == 0 {
			if ctx.Err() != nil || dispatched >= p.cfg.MaxIterations() {
				break
			}
			if p.cfg.Mode() != config.ModeContinuous {
				break
			}
			fresh := p.awaitNewItems(ctx, seen)
			if len(fresh) == 0 {
				break
			}
			queue = append(queue, fresh...)
			continue
		}

		select {
		case c := <-results:
			slots.Release()
			p.complete(c)
		case <-progress:
			m := p.recorder.Snapshot()
			p.logger.Info("progress",
				"running", m.Running,
				"completed", m.Completed,
				"failed", m.Failed,
				"pending", len(queue)-next,
			)
			for _, id := range p.recorder.Stuck() {
				p.logger.Warn("item appears stuck", "item", id)
			}
		}
	}

	// every worker has reported; Wait only reaps the goroutines
	_ = g.Wait()

	note := NoteBudgetExhausted
	if ctx.Err() != nil {
		note = NoteCancelled
	}
	for _, item := range queue[next:] {
		p.finish(item, domain.StatusSkipped, domain.ItemResult{Note: note}, executor.Outcome{})
	}

	order := make([]string, len(queue))
	for i, item := range queue {
		order[i] = item.ID
	}
	return order
}

func (p *Processor) dispatch(ctx context.Context, g *errgroup.Group, item *domain.ChecklistItem, results chan<- completion) {
	if err := item.Transition(domain.StatusRunning); err != nil {
		p.logger.Error("dispatch", "item", item.ID, "error", err)
	}
	p.recorder.MarkStarted(item)
	p.logger.Info("dispatching item", "item", item.ID, "tier", item.Tier.String())

	// the worker gets a private copy so the scheduler stays the only writer
	snapshot := *item
	itemCtx, launched := executor.WithLaunchSignal(ctxlog.WithLogger(ctx, p.logger.With("item", item.ID)))
	reports := false
	if r, ok := p.invoker.(executor.LaunchReporter); ok {
		reports = r.ReportsLaunch()
	}
	g.Go(func() error {
		if !reports {
			executor.Launched(itemCtx)
		}
		out := p.invoke(itemCtx, &snapshot)
		executor.Launched(itemCtx)
		results <- completion{item: item, outcome: out}
		return nil
	})
	// agents start in backlog order; the worker signals before it can block on results
	<-launched
}

// invoke shields the scheduler from a panicking Invoker
func (p *Processor) invoke(ctx context.Context, item *domain.ChecklistItem) (out executor.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = executor.Outcome{
				Kind: executor.OutcomeLaunchError,
				Err:  &executor.LaunchError{Runtime: p.cfg.Runtime(), Err: fmt.Errorf("panic: %v", r)},
			}
		}
	}()
	return p.invoker.Invoke(ctx, item)
}

func (p *Processor) complete(c completion) {
	out := c.outcome
	result := domain.ItemResult{
		Output:   out.Output,
		Err:      out.Err,
		Duration: out.Duration,
	}
	switch out.Kind {
	case executor.OutcomeCancelled:
		result.Note = NoteCancelled
	case executor.OutcomeTimeout:
		result.Note = fmt.Sprintf("timed out after %s", p.cfg.Timeout())
	case executor.OutcomeLaunchError:
		result.Note = "launch error"
	}

	status := out.Status()
	attrs := []any{"item", c.item.ID, "status", status, "duration", out.Duration.Round(time.Millisecond)}
	switch status {
	case domain.StatusFailed:
		p.logger.Warn("item failed", append(attrs, "kind", out.Kind, "error", out.Err)...)
	case domain.StatusSkipped:
		p.logger.Info("item cancelled", attrs...)
	default:
		p.logger.Info("item completed", attrs...)
	}

	if out.Usage != (executor.Usage{}) {
		p.recorder.RecordUsage(out.Usage.InputTokens, out.Usage.OutputTokens, out.Usage.CostUSD)
	}
	p.finish(c.item, status, result, out)
}

func (p *Processor) finish(item *domain.ChecklistItem, status domain.ItemStatus, result domain.ItemResult, out executor.Outcome) {
	if err := item.Finish(status, result); err != nil {
		p.logger.Error("recording result", "item", item.ID, "error", err)
		return
	}
	p.recorder.Record(item)
	if p.onOutcome != nil {
		p.onOutcome(item, out)
	}
}

// awaitNewItems polls the source until it yields unseen pending items.
// It returns nil when the run should stop.
func (p *Processor) awaitNewItems(ctx context.Context, seen map[string]bool) []*domain.ChecklistItem {
	if p.source == nil {
		return nil
	}

	ticker := time.NewTicker(p.cfg.PollInterval())
	defer ticker.Stop()

	var idle <-chan time.Time
	if d := p.cfg.IdleTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		idle = timer.C
	}

	p.logger.Debug("backlog drained, waiting for new items", "poll_interval", p.cfg.PollInterval())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idle:
			p.logger.Info("idle timeout reached", "idle_timeout", p.cfg.IdleTimeout())
			return nil
		case <-ticker.C:
		case <-p.changes:
			p.logger.Debug("checklist changed, polling early")
		}

		items, err := p.source(ctx)
		if err != nil {
			p.logger.Warn("polling checklist", "error", err)
			continue
		}

		var fresh []*domain.ChecklistItem
		for _, item := range items {
			if seen[item.ID] || (item.Status != "" && item.Status != domain.StatusPending) {
				continue
			}
			seen[item.ID] = true
			fresh = append(fresh, item)
		}
		if len(fresh) > 0 {
			p.logger.Info("new items found", "count", len(fresh))
			return fresh
		}
	}
}

func checkUnique(items []*domain.ChecklistItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
