// Package observer aggregates item outcomes into the run report and watches
// the checklist artifact for changes.
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

// DefaultStuckThreshold is used when NewRecorder gets a non-positive threshold
const DefaultStuckThreshold = 15 * time.Minute

// Metrics is a point-in-time view of a running aggregation
type Metrics struct {
	Processed         int
	Completed         int
	Failed            int
	Skipped           int
	Running           int
	TotalTokensInput  int
	TotalTokensOutput int
	TotalCostUSD      float64
	AvgDuration       time.Duration
}

// RunMeta describes the run being finalized
type RunMeta struct {
	RunID      string
	DryRun     bool
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
	// Order lists item IDs in backlog order; report items follow it
	Order []string
}

// Recorder accumulates per-item outcomes. It is safe for concurrent use.
type Recorder struct {
	stuckThreshold time.Duration
	now            func() time.Time

	mu            sync.Mutex
	started       map[string]time.Time
	recorded      map[string]domain.ItemSummary
	arrival       []string
	completed     int
	failed        int
	skipped       int
	totalDuration time.Duration
	tokensIn      int
	tokensOut     int
	costUSD       float64
	final         *domain.RunReport
}

// NewRecorder creates a Recorder. Items running longer than stuckThreshold
// are reported by IsStuck and Stuck.
func NewRecorder(stuckThreshold time.Duration) *Recorder {
	if stuckThreshold <= 0 {
		stuckThreshold = DefaultStuckThreshold
	}
	return &Recorder{
		stuckThreshold: stuckThreshold,
		now:            time.Now,
		started:        make(map[string]time.Time),
		recorded:       make(map[string]domain.ItemSummary),
	}
}

// MarkStarted notes that item was dispatched
func (r *Recorder) MarkStarted(item *domain.ChecklistItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final != nil {
		return
	}
	r.started[item.ID] = r.now()
}

// Record adds a terminal item to the aggregation. It returns false, and changes
// nothing, if the item is not terminal, was already recorded, or the report
// was already finalized.
func (r *Recorder) Record(item *domain.ChecklistItem) bool {
	if !item.Status.IsTerminal() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.final != nil {
		return false
	}
	if _, ok := r.recorded[item.ID]; ok {
		return false
	}

	summary := domain.Summarize(item)
	r.recorded[item.ID] = summary
	r.arrival = append(r.arrival, item.ID)
	delete(r.started, item.ID)

	switch item.Status {
	case domain.StatusCompleted:
		r.completed++
		r.totalDuration += summary.Duration
	case domain.StatusFailed:
		r.failed++
		r.totalDuration += summary.Duration
	case domain.StatusSkipped:
		r.skipped++
	}
	return true
}

// RecordUsage adds token accounting reported by an agent
func (r *Recorder) RecordUsage(tokensIn, tokensOut int, costUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final != nil {
		return
	}
	r.tokensIn += tokensIn
	r.tokensOut += tokensOut
	r.costUSD += costUSD
}

// Snapshot returns the current aggregated metrics
func (r *Recorder) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		Processed:         r.completed + r.failed,
		Completed:         r.completed,
		Failed:            r.failed,
		Skipped:           r.skipped,
		Running:           len(r.started),
		TotalTokensInput:  r.tokensIn,
		TotalTokensOutput: r.tokensOut,
		TotalCostUSD:      r.costUSD,
	}
	if m.Processed > 0 {
		m.AvgDuration = r.totalDuration / time.Duration(m.Processed)
	}
	return m
}

// IsStuck returns true if item is running and has exceeded the stuck threshold
func (r *Recorder) IsStuck(item *domain.ChecklistItem) bool {
	if item.Status != domain.StatusRunning {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	started, ok := r.started[item.ID]
	if !ok {
		return false
	}
	return r.now().Sub(started) > r.stuckThreshold
}

// Stuck returns the IDs of dispatched items running longer than the threshold
func (r *Recorder) Stuck() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, started := range r.started {
		if r.now().Sub(started) > r.stuckThreshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// Finalize produces the run report. Only the first call builds it; later
// calls return the same report and the Recorder accepts no further records.
func (r *Recorder) Finalize(meta RunMeta) domain.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.final != nil {
		return r.copyFinal()
	}

	report := domain.RunReport{
		RunID:      meta.RunID,
		Processed:  r.completed + r.failed,
		Completed:  r.completed,
		Failed:     r.failed,
		Skipped:    r.skipped,
		DryRun:     meta.DryRun,
		Cancelled:  meta.Cancelled,
		StartedAt:  meta.StartedAt,
		FinishedAt: meta.FinishedAt,
	}
	if report.FinishedAt.IsZero() {
		report.FinishedAt = r.now()
	}

	emitted := make(map[string]bool, len(r.recorded))
	for _, id := range meta.Order {
		if s, ok := r.recorded[id]; ok && !emitted[id] {
			report.Items = append(report.Items, s)
			emitted[id] = true
		}
	}
	for _, id := range r.arrival {
		if !emitted[id] {
			report.Items = append(report.Items, r.recorded[id])
			emitted[id] = true
		}
	}

	r.final = &report
	return r.copyFinal()
}

// copyFinal must be called with r.mu held
func (r *Recorder) copyFinal() domain.RunReport {
	out := *r.final
	out.Items = append([]domain.ItemSummary(nil), r.final.Items...)
	return out
}
