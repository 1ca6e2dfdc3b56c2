package checklist

import "github.com/hochfrequenz/checklist-orch/internal/domain"

// FilterOptions selects a subset of a loaded checklist.
// Empty selectors match everything.
type FilterOptions struct {
	IDs        []string
	Tiers      []int
	ExcludeIDs []string
	// SkipPriorCompleted drops items the artifact already marks as completed
	SkipPriorCompleted bool
}

// Filter returns fresh pending copies of the items that match opts, preserving order
func Filter(items []*domain.ChecklistItem, opts FilterOptions) []*domain.ChecklistItem {
	ids := toSet(opts.IDs)
	excluded := toSet(opts.ExcludeIDs)
	tiers := make(map[int]bool, len(opts.Tiers))
	for _, t := range opts.Tiers {
		tiers[t] = true
	}

	var out []*domain.ChecklistItem
	for _, item := range items {
		if len(ids) > 0 && !ids[item.ID] {
			continue
		}
		if len(tiers) > 0 && !tiers[item.Tier.Index] {
			continue
		}
		if excluded[item.ID] {
			continue
		}
		if opts.SkipPriorCompleted && item.PriorStatus == domain.StatusCompleted {
			continue
		}
		out = append(out, item.Clone())
	}
	return out
}

// Tiers returns the distinct tiers of items in order of first appearance
func Tiers(items []*domain.ChecklistItem) []domain.Tier {
	seen := make(map[domain.Tier]bool)
	var tiers []domain.Tier
	for _, item := range items {
		if !seen[item.Tier] {
			seen[item.Tier] = true
			tiers = append(tiers, item.Tier)
		}
	}
	return tiers
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
