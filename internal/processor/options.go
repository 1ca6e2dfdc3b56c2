package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/executor"
	"github.com/hochfrequenz/checklist-orch/internal/observer"
)

// Source returns the current checklist; it is polled in continuous mode
type Source func(ctx context.Context) ([]*domain.ChecklistItem, error)

// OutcomeFunc observes every item the moment its status becomes terminal.
// It runs on the scheduler goroutine and must not block.
type OutcomeFunc func(item *domain.ChecklistItem, outcome executor.Outcome)

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSource sets the source re-polled for new items in continuous mode
func WithSource(source Source) Option {
	return func(p *Processor) { p.source = source }
}

// WithChanges wakes the continuous-mode poller early whenever ch fires
func WithChanges(ch <-chan struct{}) Option {
	return func(p *Processor) { p.changes = ch }
}

// WithRecorder sets the aggregator that builds the report
func WithRecorder(rec *observer.Recorder) Option {
	return func(p *Processor) { p.recorder = rec }
}

// WithOnOutcome registers a callback for finished items
func WithOnOutcome(fn OutcomeFunc) Option {
	return func(p *Processor) { p.onOutcome = fn }
}

// WithClock overrides the clock used for report timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithRunID sets the run ID reported in the RunReport
func WithRunID(id string) Option {
	return func(p *Processor) { p.runID = id }
}

// WithProgressInterval sets how often long-running items are logged in verbose mode
func WithProgressInterval(d time.Duration) Option {
	return func(p *Processor) { p.progressInterval = d }
}
