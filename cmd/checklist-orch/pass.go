package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/checklist-orch/internal/checklist"
	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/executor"
	"github.com/hochfrequenz/checklist-orch/internal/notify"
	"github.com/hochfrequenz/checklist-orch/internal/observability"
	"github.com/hochfrequenz/checklist-orch/internal/observer"
	"github.com/hochfrequenz/checklist-orch/internal/processor"
	"github.com/hochfrequenz/checklist-orch/internal/prompts"
	"github.com/hochfrequenz/checklist-orch/internal/taskstore"
)

var errNothingSelected = errors.New("nothing selected")

const notifyTimeout = 15 * time.Second

// selection narrows the checklist before it becomes the backlog
type selection struct {
	tiers      []int
	items      []string
	onlyFailed bool
	skipPassed bool
}

// pass is one end-to-end processing run: load, select, process, record
type pass struct {
	cfg         *config.RunConfig
	selection   selection
	dbPath      string
	metricsPath string
	notifier    notify.Notifier
	reporter    *observability.Reporter
	logger      *slog.Logger
	out         io.Writer

	usage observer.Metrics
}

func notifierFromConfig(file *config.File) notify.Notifier {
	var notifiers notify.Multi
	if file.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktop())
	}
	if file.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlack(file.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.Noop{}
	}
	return notifiers
}

// execute runs the pass. A zero report with a nil error means nothing was selected.
func (p *pass) execute(ctx context.Context) (domain.RunReport, error) {
	items, err := checklist.Load(p.cfg.ChecklistPath())
	if err != nil {
		return domain.RunReport{}, err
	}

	var store *taskstore.Store
	if p.dbPath != "" {
		if store, err = openStore(p.dbPath); err != nil {
			p.logger.Warn("run history unavailable", "path", p.dbPath, "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	filter, err := p.filterOptions(store)
	if err != nil && !errors.Is(err, errNothingSelected) {
		return domain.RunReport{}, err
	}
	var backlog []*domain.ChecklistItem
	if err == nil {
		backlog = checklist.Filter(items, filter)
	}
	if len(backlog) == 0 {
		fmt.Fprintln(p.out, "No checklist items selected")
		return domain.RunReport{}, nil
	}

	runID := uuid.NewString()
	log := p.logger.With("run_id", runID)
	recorder := observer.NewRecorder(p.cfg.Timeout())

	opts := []processor.Option{
		processor.WithLogger(log),
		processor.WithRunID(runID),
		processor.WithRecorder(recorder),
		processor.WithOnOutcome(func(item *domain.ChecklistItem, out executor.Outcome) {
			renderProgress(p.out, item)
			if item.Status == domain.StatusFailed {
				p.reporter.ReportItemFailure(runID, domain.Summarize(item))
			}
		}),
	}

	if p.cfg.Mode() == config.ModeContinuous {
		src := checklist.Source(p.cfg.ChecklistPath())
		opts = append(opts, processor.WithSource(func(ctx context.Context) ([]*domain.ChecklistItem, error) {
			polled, err := src(ctx)
			if err != nil {
				return nil, err
			}
			return checklist.Filter(polled, filter), nil
		}))

		watcher, err := observer.NewChecklistWatcher(p.cfg.ChecklistPath(), log)
		if err != nil {
			log.Warn("checklist watcher unavailable, relying on polling", "error", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
			opts = append(opts, processor.WithChanges(watcher.Changes()))
		}
	}

	var invoker executor.Invoker
	if !p.cfg.DryRun() {
		loader := prompts.DefaultLoader(p.cfg.AgentResourcesDir())
		// a broken template would fail every item, so fail the run instead
		origin, err := loader.Origin(prompts.ItemTemplate)
		if err != nil {
			return domain.RunReport{}, err
		}
		log.Debug("item prompt template", "origin", origin)
		invoker = executor.NewInvoker(p.cfg, loader, log, executor.WithRunID(runID))
	}

	proc := processor.New(p.cfg, invoker, opts...)
	stop := context.AfterFunc(ctx, proc.Cancel)
	defer stop()

	report, err := proc.Process(ctx, backlog)
	if err != nil {
		p.reporter.ReportRunError(runID, err)
		return domain.RunReport{}, err
	}
	p.usage = recorder.Snapshot()

	p.record(ctx, store, report)
	return report, nil
}

func (p *pass) filterOptions(store *taskstore.Store) (checklist.FilterOptions, error) {
	filter := checklist.FilterOptions{
		IDs:                p.selection.items,
		Tiers:              p.selection.tiers,
		SkipPriorCompleted: p.selection.skipPassed,
	}

	if p.selection.onlyFailed {
		if store == nil {
			return filter, errors.New("--only-failed needs the run history database")
		}
		latest, err := store.LatestRun()
		if err != nil {
			return filter, fmt.Errorf("finding the latest run: %w", err)
		}
		failed, err := store.FailedItemIDs(latest.ID)
		if err != nil {
			return filter, err
		}
		p.logger.Info("retrying failed items", "from_run", latest.ID, "count", len(failed))
		// an empty ID list would select everything
		if filter.IDs = intersect(filter.IDs, failed); len(filter.IDs) == 0 {
			return filter, errNothingSelected
		}
	}

	if p.selection.skipPassed && store != nil {
		statuses, err := store.LatestItemStatuses()
		if err != nil {
			return filter, err
		}
		for id, status := range statuses {
			if status == domain.StatusCompleted {
				filter.ExcludeIDs = append(filter.ExcludeIDs, id)
			}
		}
	}
	return filter, nil
}

// intersect returns b restricted to a; an empty a means no restriction
func intersect(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	keep := make(map[string]bool, len(a))
	for _, id := range a {
		keep[id] = true
	}
	var out []string
	for _, id := range b {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

// record persists the report and publishes it. Failures here never fail the run.
func (p *pass) record(ctx context.Context, store *taskstore.Store, report domain.RunReport) {
	if store != nil {
		info := taskstore.RunInfo{
			Checklist: p.cfg.ChecklistPath(),
			Runtime:   string(p.cfg.Runtime()),
			Model:     p.cfg.EffectiveModel(),
		}
		if err := store.SaveReport(report, info); err != nil {
			p.logger.Warn("saving run history", "error", err)
		}
	}

	if p.metricsPath != "" {
		if err := observer.WriteTextfile(p.metricsPath, report, string(p.cfg.Runtime())); err != nil {
			p.logger.Warn("writing metrics", "path", p.metricsPath, "error", err)
		}
	}

	// an interrupted run still announces its partial report
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := p.notifier.Send(sendCtx, notify.FromReport(report)); err != nil {
		p.logger.Warn("sending notification", "error", err)
	}
}

func openStore(path string) (*taskstore.Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	return taskstore.New(path)
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// shorten rounds a duration for display
func shorten(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Second)
}
