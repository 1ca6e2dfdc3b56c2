// Package notify tells people that a run has finished.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

// Level is the severity of a run notification
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification summarises one finished run
type Notification struct {
	Title   string
	Message string
	Level   Level
	RunID   string

	Completed int
	Skipped   int
	Failed    []string // IDs of failed items
	Duration  time.Duration
}

// Notifier delivers a notification somewhere
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

const maxListedFailures = 10

// FromReport builds the completion notification for a run
func FromReport(report domain.RunReport) Notification {
	n := Notification{
		RunID:     report.RunID,
		Completed: report.Completed,
		Skipped:   report.Skipped,
		Duration:  report.Duration(),
	}
	for _, item := range report.Items {
		if item.Status == domain.StatusFailed {
			n.Failed = append(n.Failed, item.ID)
		}
	}

	switch {
	case report.DryRun:
		n.Level = LevelInfo
		n.Title = "Checklist dry run finished"
	case report.Failed > 0:
		n.Level = LevelError
		n.Title = fmt.Sprintf("Checklist run finished: %d failed", report.Failed)
	case report.Cancelled:
		n.Level = LevelWarning
		n.Title = "Checklist run cancelled"
	default:
		n.Level = LevelSuccess
		n.Title = "Checklist run passed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d completed, %d failed, %d skipped in %s",
		report.Completed, report.Failed, report.Skipped,
		elapsed(report.FinishedAt.Sub(report.StartedAt)))
	if len(n.Failed) > 0 {
		b.WriteString("\nFailed: " + listFailures(n.Failed))
	}
	n.Message = b.String()
	return n
}

// listFailures joins ids, naming at most maxListedFailures of them
func listFailures(ids []string) string {
	if len(ids) <= maxListedFailures {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(ids[:maxListedFailures], ", "), len(ids)-maxListedFailures)
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// Send delivers to every notifier, even after one fails
func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards notifications
type Noop struct{}

func (Noop) Send(context.Context, Notification) error { return nil }

// elapsed renders a run duration; RelTime says "now" below one second
func elapsed(d time.Duration) string {
	if d < time.Second {
		return "under a second"
	}
	var zero time.Time
	return strings.TrimSpace(humanize.RelTime(zero, zero.Add(d), "", ""))
}
