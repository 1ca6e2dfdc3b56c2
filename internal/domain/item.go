package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrResultAlreadySet is returned when an item's result is recorded twice
var ErrResultAlreadySet = errors.New("item result already set")

// ItemResult is the captured outcome of a single item
type ItemResult struct {
	Output   string
	Err      error
	Note     string
	Duration time.Duration
}

// ChecklistItem is one unit of verification work loaded from a checklist
type ChecklistItem struct {
	ID           string
	Tier         Tier
	Instructions string
	PriorStatus  ItemStatus // status recorded in the checklist artifact, if any
	Status       ItemStatus
	Result       *ItemResult
	Line         int // source line in the checklist, 0 if unknown
}

// NewItem creates a pending item
func NewItem(id string, tier Tier, instructions string) *ChecklistItem {
	return &ChecklistItem{
		ID:           id,
		Tier:         tier,
		Instructions: instructions,
		Status:       StatusPending,
	}
}

// Transition moves the item to next, enforcing monotonic status progression
func (i *ChecklistItem) Transition(next ItemStatus) error {
	current := i.Status
	if current == "" {
		current = StatusPending
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("%s: %s -> %s: %w", i.ID, current, next, ErrInvalidTransition)
	}
	i.Status = next
	return nil
}

// SetResult records the item's result. It may only be called once.
func (i *ChecklistItem) SetResult(r ItemResult) error {
	if i.Result != nil {
		return fmt.Errorf("%s: %w", i.ID, ErrResultAlreadySet)
	}
	i.Result = &r
	return nil
}

// Finish transitions the item into a terminal status and records its result
func (i *ChecklistItem) Finish(status ItemStatus, r ItemResult) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%s: %s is not terminal: %w", i.ID, status, ErrInvalidTransition)
	}
	if i.Result != nil {
		return fmt.Errorf("%s: %w", i.ID, ErrResultAlreadySet)
	}
	if err := i.Transition(status); err != nil {
		return err
	}
	i.Result = &r
	return nil
}

// Clone returns a fresh pending copy of the item
func (i *ChecklistItem) Clone() *ChecklistItem {
	return &ChecklistItem{
		ID:           i.ID,
		Tier:         i.Tier,
		Instructions: i.Instructions,
		PriorStatus:  i.PriorStatus,
		Status:       StatusPending,
		Line:         i.Line,
	}
}
