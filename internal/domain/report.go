package domain

import "time"

// ItemSummary is the per-item line of a RunReport
type ItemSummary struct {
	ID       string
	Tier     Tier
	Status   ItemStatus
	Note     string
	Error    string
	Duration time.Duration
}

// RunReport is produced once at the end of a run and handed to the caller
type RunReport struct {
	RunID      string
	Processed  int
	Completed  int
	Failed     int
	Skipped    int
	DryRun     bool
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Items      []ItemSummary
}

// Duration returns the wall-clock time of the run
func (r RunReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Total returns the number of items the run accounted for
func (r RunReport) Total() int {
	return r.Completed + r.Failed + r.Skipped
}

// ExitCode returns the process exit code for the run: non-zero iff any item failed
func (r RunReport) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Summarize builds an ItemSummary from an item's current state
func Summarize(item *ChecklistItem) ItemSummary {
	s := ItemSummary{
		ID:     item.ID,
		Tier:   item.Tier,
		Status: item.Status,
	}
	if item.Result != nil {
		s.Note = item.Result.Note
		s.Duration = item.Result.Duration
		if item.Result.Err != nil {
			s.Error = item.Result.Err.Error()
		}
	}
	return s
}
