package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"github.com/hochfrequenz/checklist-orch/internal/observer"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	tierStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func statusMark(s domain.ItemStatus) string {
	switch s {
	case domain.StatusCompleted:
		return completedStyle.Render("✓")
	case domain.StatusFailed:
		return failedStyle.Render("✗")
	case domain.StatusSkipped:
		return skippedStyle.Render("-")
	default:
		return dimStyle.Render("·")
	}
}

// renderProgress prints one line as an item finishes
func renderProgress(w io.Writer, item *domain.ChecklistItem) {
	line := fmt.Sprintf("%s %s", statusMark(item.Status), item.ID)
	if item.Result != nil {
		if item.Result.Duration > 0 {
			line += dimStyle.Render(fmt.Sprintf(" (%s)", shorten(item.Result.Duration)))
		}
		if item.Result.Note != "" && item.Status != domain.StatusCompleted {
			line += dimStyle.Render(" " + item.Result.Note)
		}
	}
	fmt.Fprintln(w, line)
}

// renderReport prints the end-of-run summary grouped by tier
func renderReport(w io.Writer, report domain.RunReport, usage observer.Metrics) {
	title := "Run " + report.RunID
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(title))

	var current domain.Tier
	for i, item := range report.Items {
		if i == 0 || item.Tier != current {
			current = item.Tier
			fmt.Fprintln(w, tierStyle.Render(current.String()))
		}
		line := fmt.Sprintf("  %s %s", statusMark(item.Status), item.ID)
		if item.Duration > 0 {
			line += dimStyle.Render(fmt.Sprintf("  %s", shorten(item.Duration)))
		}
		if item.Error != "" {
			line += "  " + failedStyle.Render(firstLine(item.Error))
		} else if item.Note != "" {
			line += "  " + dimStyle.Render(item.Note)
		}
		fmt.Fprintln(w, line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s completed  %s failed  %s skipped  in %s",
		completedStyle.Render(humanize.Comma(int64(report.Completed))),
		failedStyle.Render(humanize.Comma(int64(report.Failed))),
		skippedStyle.Render(humanize.Comma(int64(report.Skipped))),
		shorten(report.Duration()))
	if usage.TotalTokensInput > 0 || usage.TotalTokensOutput > 0 {
		fmt.Fprintf(&b, "\ntokens: %s in / %s out",
			humanize.Comma(int64(usage.TotalTokensInput)),
			humanize.Comma(int64(usage.TotalTokensOutput)))
		if usage.TotalCostUSD > 0 {
			fmt.Fprintf(&b, "  cost: $%s", humanize.FormatFloat("#,###.##", usage.TotalCostUSD))
		}
	}
	if report.Cancelled {
		b.WriteString("\n" + skippedStyle.Render("cancelled before completion"))
	}
	fmt.Fprintln(w, summaryStyle.Render(b.String()))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
