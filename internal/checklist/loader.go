// Package checklist loads checklist artifacts into ordered backlogs of items.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

// ErrChecklistLoad matches every LoadError via errors.Is
var ErrChecklistLoad = errors.New("checklist load failed")

// LoadError reports a checklist that is missing, unreadable or malformed.
// Line is 0 when the problem is not tied to a specific line.
type LoadError struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("checklist %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("checklist %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Is(target error) bool {
	return target == ErrChecklistLoad
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the checklist at path and returns its items ordered by tier, then
// by position within the tier. Every call returns fresh pending items.
func Load(path string) ([]*domain.ChecklistItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		reason := "unreadable: " + err.Error()
		if errors.Is(err, os.ErrNotExist) {
			reason = "not found"
		}
		return nil, &LoadError{Path: path, Reason: reason, Err: err}
	}

	var items []*domain.ChecklistItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		items, err = parseMarkdown(path, content)
	case ".yaml", ".yml":
		items, err = parseYAML(path, content)
	default:
		return nil, &LoadError{Path: path, Reason: fmt.Sprintf("unsupported checklist format %q", filepath.Ext(path))}
	}
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, &LoadError{Path: path, Reason: "checklist contains no items"}
	}
	if err := checkUnique(path, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Source returns a function that reloads the checklist on every call.
// It is used to re-poll the artifact in continuous mode.
func Source(path string) func(context.Context) ([]*domain.ChecklistItem, error) {
	return func(ctx context.Context) ([]*domain.ChecklistItem, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Load(path)
	}
}

func checkUnique(path string, items []*domain.ChecklistItem) error {
	seen := make(map[string]*domain.ChecklistItem, len(items))
	for _, item := range items {
		if first, ok := seen[item.ID]; ok {
			reason := fmt.Sprintf("duplicate item id %s", item.ID)
			if first.Line > 0 {
				reason += fmt.Sprintf(" (first defined on line %d)", first.Line)
			}
			return &LoadError{Path: path, Line: item.Line, Reason: reason}
		}
		seen[item.ID] = item
	}
	return nil
}

func validateItem(path string, item *domain.ChecklistItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return &LoadError{Path: path, Line: item.Line, Reason: "item has an empty id"}
	}
	if strings.TrimSpace(item.Instructions) == "" {
		return &LoadError{Path: path, Line: item.Line, Reason: fmt.Sprintf("item %s has no instructions", item.ID)}
	}
	return nil
}
