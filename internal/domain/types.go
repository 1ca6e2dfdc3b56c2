package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ItemStatus represents the lifecycle state of a checklist item within one run
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusRunning   ItemStatus = "running"
	StatusCompleted ItemStatus = "completed"
	StatusFailed    ItemStatus = "failed"
	StatusSkipped   ItemStatus = "skipped"
)

// ErrInvalidTransition is returned when a status change would move an item backwards
var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal reports whether no further transitions are allowed from s
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed.
// Pending -> Running -> {Completed|Failed|Skipped}, and Pending -> Skipped.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusSkipped
	case StatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ToStatus converts a loosely formatted status string to an ItemStatus.
// Unknown or empty values map to pending.
func ToStatus(s string) ItemStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "in_progress", "in-progress":
		return StatusRunning
	case "completed", "complete", "done", "passed", "pass", "x":
		return StatusCompleted
	case "failed", "fail", "!":
		return StatusFailed
	case "skipped", "skip", "-":
		return StatusSkipped
	default:
		return StatusPending
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Tier is an ordinal grouping of checklist items
type Tier struct {
	Index int
	Name  string
}

// String returns the display form, e.g. "Tier 1: Installation"
func (t Tier) String() string {
	if t.Name == "" {
		return fmt.Sprintf("Tier %d", t.Index)
	}
	return fmt.Sprintf("Tier %d: %s", t.Index, t.Name)
}

// Slug returns a filesystem-safe identifier such as
// "tier_1_installation_setup_verification".
func (t Tier) Slug() string {
	name := nonSlugChars.ReplaceAllString(strings.ToLower(t.Name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return fmt.Sprintf("tier_%d", t.Index)
	}
	return fmt.Sprintf("tier_%d_%s", t.Index, name)
}
